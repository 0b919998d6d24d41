package fragmentation

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// ErrUnknownView is returned for views without a registered chain.
var ErrUnknownView = errors.New("view has no fragmentation chain")

// Chain is the fragmentation setup of one view.
type Chain struct {
	Strategy Strategy
	Filter   MemberFilter
}

// Result summarizes one Bucketise call.
type Result struct {
	Members  []BucketisedMember
	Filtered int
	NewView  bool
}

// Service routes members of a view through its strategy chain and queues the
// resulting bucketised members for pagination.
type Service struct {
	buckets     BucketStore
	members     MemberStore
	publisher   events.Publisher
	logger      log.Logger
	metrics     *metrics.Metrics
	parallelism int

	mu     sync.RWMutex
	chains map[fragment.ViewName]Chain
}

func NewService(buckets BucketStore, members MemberStore, publisher events.Publisher, logger log.Logger, m *metrics.Metrics, parallelism int) *Service {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Service{
		buckets:     buckets,
		members:     members,
		publisher:   publisher,
		logger:      logger.With(log.Component("fragmentation")),
		metrics:     m,
		parallelism: parallelism,
		chains:      make(map[fragment.ViewName]Chain),
	}
}

// Register installs or replaces the chain of view.
func (s *Service) Register(view fragment.ViewName, c Chain) {
	if c.Strategy == nil {
		c.Strategy = Leaf{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[view] = c
}

// Unregister stops accepting members for view.
func (s *Service) Unregister(view fragment.ViewName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, view)
}

func (s *Service) chain(view fragment.ViewName) (Chain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[view]
	return c, ok
}

// RootBucket returns the saved root bucket of view, creating it once.
func (s *Service) RootBucket(ctx context.Context, view fragment.ViewName) (Bucket, error) {
	root := RootBucket(view)
	if b, found, err := s.buckets.Retrieve(ctx, view, root.Descriptor); err != nil || found {
		return b, err
	}
	b, _, err := s.buckets.InsertIfAbsent(ctx, root, nil)
	return b, err
}

// Bucketise places members into buckets. Members keep their input order
// within every bucket they land in.
func (s *Service) Bucketise(ctx context.Context, view fragment.ViewName, members []Member) (Result, error) {
	c, ok := s.chain(view)
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownView, "view %s", view)
	}

	admitted := members[:0:0]
	for _, m := range members {
		if c.Filter.Admit(m) {
			admitted = append(admitted, m)
		}
	}
	res := Result{Filtered: len(members) - len(admitted)}
	if len(admitted) == 0 {
		return res, nil
	}

	root, err := s.RootBucket(ctx, view)
	if err != nil {
		return Result{}, err
	}
	first, err := s.members.AllocateSeqs(ctx, view, len(admitted))
	if err != nil {
		return Result{}, err
	}
	res.NewView = first == 1

	targets := make([][]Bucket, len(admitted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, m := range admitted {
		i, m := i, m
		g.Go(func() error {
			buckets, err := c.Strategy.AddMemberToBucket(gctx, root, m)
			if err != nil {
				return errors.Wrapf(err, "bucketise member %s", m.ID)
			}
			targets[i] = buckets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for i, m := range admitted {
		for _, b := range targets[i] {
			res.Members = append(res.Members, BucketisedMember{
				View:     view,
				BucketID: b.ID,
				MemberID: m.ID,
				Seq:      first + uint64(i),
			})
		}
	}
	if err := s.members.Add(ctx, res.Members); err != nil {
		return Result{}, err
	}
	s.metrics.MembersBucketised(view.String(), len(res.Members))

	var ev events.Event = events.MemberBucketised{View: view, Members: len(res.Members)}
	if res.NewView {
		ev = events.NewViewBucketised{View: view}
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		return Result{}, err
	}
	s.logger.Debug("members bucketised",
		log.Str("view", view.String()), log.Int("members", len(res.Members)), log.Int("filtered", res.Filtered))
	return res, nil
}

// DeleteView unregisters view and removes its buckets and pending members.
func (s *Service) DeleteView(ctx context.Context, view fragment.ViewName) error {
	s.Unregister(view)
	if err := s.members.DeleteView(ctx, view); err != nil {
		return err
	}
	return s.buckets.DeleteView(ctx, view)
}
