package pagination

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// Deps are the collaborators shared by every pipeline of a Service.
type Deps struct {
	Buckets   fragmentation.BucketStore
	Members   fragmentation.MemberStore
	Sequences SequenceStore
	Pages     PageStore
	Writer    AssignmentWriter
	// Fragments is optional; when set, page fragments track member counts
	// and sealing.
	Fragments fragment.Repository
	// Outbox carries page relations from the write that creates a page to
	// the event bus.
	Outbox  *events.Outbox
	Metrics *metrics.Metrics
	Logger  log.Logger
}

// Service owns one Pipeline per initialized view and drives it from view
// lifecycle and bucketisation events.
type Service struct {
	deps   Deps
	opts   PipelineOptions
	logger log.Logger

	lifecycle *keyedMutex[fragment.ViewName]

	mu        sync.RWMutex
	pipelines map[fragment.ViewName]*Pipeline
	closed    bool
}

func NewService(deps Deps, opts PipelineOptions) *Service {
	opts.setDefaults()
	if deps.Logger == nil {
		deps.Logger = log.NewNopLogger()
	}
	return &Service{
		deps:      deps,
		opts:      opts,
		logger:    deps.Logger.With(log.Component("pagination")),
		lifecycle: newKeyedMutex[fragment.ViewName](),
		pipelines: make(map[fragment.ViewName]*Pipeline),
	}
}

// Subscriptions lists the event kinds Handle understands.
func Subscriptions() []events.Kind {
	return []events.Kind{
		events.KindViewInitialized,
		events.KindViewDeleted,
		events.KindMemberBucketised,
		events.KindNewViewBucketised,
	}
}

// Handle dispatches one bus event. Duplicates are harmless.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	switch ev := env.Event.(type) {
	case events.ViewInitialized:
		err := s.InitView(ctx, ev.View, ev.Pagination)
		if errors.Is(err, ErrInvalidConfig) {
			s.logger.Error("view has unusable pagination config", log.Str("view", ev.View.String()), log.Err(err))
			return events.Permanent(err)
		}
		return err
	case events.ViewDeleted:
		return s.DeleteView(ctx, ev.View)
	case events.MemberBucketised:
		s.Trigger(ev.View)
	case events.NewViewBucketised:
		s.Trigger(ev.View)
	}
	return nil
}

// InitView starts the pipeline of view. An already running pipeline is kept.
func (s *Service) InitView(ctx context.Context, view fragment.ViewName, props map[string]string) error {
	cfg, err := ParseConfig(props)
	if err != nil {
		return errors.Wrapf(err, "view %s", view)
	}
	unlock := s.lifecycle.Lock(view)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("pagination service closed")
	}
	if _, ok := s.pipelines[view]; ok {
		return nil
	}
	p := s.newPipeline(view, cfg)
	s.pipelines[view] = p
	p.Start()
	// Members may have been bucketised before the view reached us.
	p.Trigger()
	s.logger.Info("pagination pipeline started",
		log.Str("view", view.String()), log.Int("member_limit", cfg.MemberLimit), log.Bool("bidirectional", cfg.BidirectionalRelations))
	return nil
}

func (s *Service) newPipeline(view fragment.ViewName, cfg Config) *Pipeline {
	logger := s.logger.With(log.Str("view", view.String()))
	creator := NewPageCreator(s.deps.Sequences, s.deps.Pages, s.deps.Outbox, cfg, s.deps.Metrics, logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		view:      view,
		cfg:       cfg,
		buckets:   s.deps.Buckets,
		members:   s.deps.Members,
		pages:     s.deps.Pages,
		provider:  NewOpenPageProvider(s.deps.Pages, creator, cfg, s.deps.Fragments, logger),
		writer:    s.deps.Writer,
		fragments: s.deps.Fragments,
		metrics:   s.deps.Metrics,
		logger:    logger,
		opts:      s.opts,
		trigger:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// DeleteView stops the pipeline of view, waits for its in-flight run and
// then removes every page, sequence and assignment of the view.
func (s *Service) DeleteView(ctx context.Context, view fragment.ViewName) error {
	unlock := s.lifecycle.Lock(view)
	defer unlock()

	s.mu.Lock()
	p, ok := s.pipelines[view]
	delete(s.pipelines, view)
	s.mu.Unlock()
	if ok {
		p.Stop()
	}

	if err := s.deps.Pages.DeleteView(ctx, view); err != nil {
		return err
	}
	// Links of deleted pages must not be published later.
	if err := s.deps.Outbox.DeleteView(ctx, view); err != nil {
		return err
	}
	if err := s.deps.Sequences.DeleteView(ctx, view); err != nil {
		return err
	}
	if s.deps.Writer != nil {
		if err := s.deps.Writer.DeleteView(ctx, view); err != nil {
			return err
		}
	}
	s.logger.Info("pagination state deleted", log.Str("view", view.String()))
	return nil
}

// Pipeline returns the running pipeline of view.
func (s *Service) Pipeline(view fragment.ViewName) (*Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[view]
	return p, ok
}

// Views lists the views with a running pipeline.
func (s *Service) Views() []fragment.ViewName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fragment.ViewName, 0, len(s.pipelines))
	for v := range s.pipelines {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Trigger requests a run of view. Unknown views are ignored.
func (s *Service) Trigger(view fragment.ViewName) {
	if p, ok := s.Pipeline(view); ok {
		p.Trigger()
		return
	}
	s.logger.Debug("trigger for view without pipeline", log.Str("view", view.String()))
}

// TriggerAll requests a run of every pipeline.
func (s *Service) TriggerAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pipelines {
		p.Trigger()
	}
}

// Run triggers every pipeline each interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TriggerAll()
		}
	}
}

// Close stops every pipeline. Pagination state is kept.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	pipelines := s.pipelines
	s.pipelines = make(map[fragment.ViewName]*Pipeline)
	s.mu.Unlock()
	for _, p := range pipelines {
		p.Stop()
	}
}
