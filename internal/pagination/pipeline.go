package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// PipelineOptions tunes how a view's pending members are paginated.
type PipelineOptions struct {
	// Parallelism bounds the buckets processed at once (default 4).
	Parallelism int
	// ChunkSize is the number of pending members read per round (default 256).
	ChunkSize int
	// RunTimeout bounds one run (default 5m).
	RunTimeout time.Duration
	// NewBackOff builds the retry policy of one partition.
	NewBackOff func() backoff.BackOff
}

func (o *PipelineOptions) setDefaults() {
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 256
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 5 * time.Minute
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 50 * time.Millisecond
			eb.MaxElapsedTime = 30 * time.Second
			return eb
		}
	}
}

// Pipeline paginates the pending members of one view. Runs are serialized
// and triggers that arrive during a run collapse into one follow-up run.
type Pipeline struct {
	view      fragment.ViewName
	cfg       Config
	buckets   fragmentation.BucketStore
	members   fragmentation.MemberStore
	pages     PageStore
	provider  *OpenPageProvider
	writer    AssignmentWriter
	fragments fragment.Repository
	metrics   *metrics.Metrics
	logger    log.Logger
	opts      PipelineOptions

	runMu   sync.Mutex
	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (p *Pipeline) View() fragment.ViewName { return p.view }

func (p *Pipeline) Config() Config { return p.cfg }

// Start launches the trigger loop.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Trigger asks for a run without waiting for it.
func (p *Pipeline) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the in-flight run and waits for the loop to exit.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	// A direct Run holds runMu until it observes the cancel.
	p.runMu.Lock()
	defer p.runMu.Unlock()
}

func (p *Pipeline) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.trigger:
			if err := p.Run(p.ctx); err != nil && p.ctx.Err() == nil {
				p.logger.Error("pagination run failed", log.Err(err))
			}
		}
	}
}

// Run paginates everything pending for the view. Buckets are processed in
// parallel and each failed bucket is retried with backoff.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.opts.RunTimeout)
	defer cancel()
	// Stop must interrupt direct callers too.
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(log.Str("run", runID))
	defer func() { p.metrics.PaginationRun(p.view.String(), time.Since(start), err) }()

	bucketIDs, err := p.members.PendingBuckets(ctx, p.view)
	if err != nil || len(bucketIDs) == 0 {
		return err
	}

	var paginated int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)
	for _, id := range bucketIDs {
		id := id
		g.Go(func() error {
			attempt := 0
			return backoff.Retry(func() error {
				attempt++
				n, err := p.processPartition(gctx, id)
				mu.Lock()
				paginated += n
				mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return backoff.Permanent(gctx.Err())
					}
					logger.Warn("partition failed", log.Int64("bucket", id), log.Int("attempt", attempt), log.Err(err))
				}
				return err
			}, backoff.WithContext(p.opts.NewBackOff(), gctx))
		})
	}
	err = g.Wait()
	logger.Debug("pagination run finished",
		log.Int("buckets", len(bucketIDs)), log.Int("members", paginated), log.Duration("elapsed", time.Since(start)))
	return err
}

// processPartition drains the pending members of one bucket chunk by chunk.
// Each chunk's assignments and the removal of its pending rows commit in one
// batch.
func (p *Pipeline) processPartition(ctx context.Context, bucketID int64) (int, error) {
	bucket, err := p.buckets.Get(ctx, p.view, bucketID)
	if err != nil {
		return 0, err
	}
	done := 0
	for {
		pending, err := p.members.Pending(ctx, p.view, bucketID, p.opts.ChunkSize)
		if err != nil || len(pending) == 0 {
			return done, err
		}
		ids := make([]string, len(pending))
		for i, m := range pending {
			ids[i] = m.MemberID
		}
		assignments, err := p.provider.AssignAll(ctx, bucket, ids)
		if err != nil {
			return done, err
		}
		if err := p.writer.Write(ctx, assignments, pending); err != nil {
			return done, err
		}
		if err := p.countMembers(ctx, assignments); err != nil {
			return done, err
		}
		done += len(assignments)
		p.metrics.MembersPaginated(p.view.String(), len(assignments))
		if len(pending) < p.opts.ChunkSize {
			return done, nil
		}
	}
}

func (p *Pipeline) countMembers(ctx context.Context, assignments []PageAssignment) error {
	if p.fragments == nil {
		return nil
	}
	var order []int64
	perPage := make(map[int64]int)
	for _, a := range assignments {
		if _, ok := perPage[a.PageID]; !ok {
			order = append(order, a.PageID)
		}
		perPage[a.PageID]++
	}
	for _, id := range order {
		page, err := p.pages.Get(ctx, p.view, id)
		if err != nil {
			return err
		}
		if err := p.fragments.IncrementMembers(ctx, page.FragmentID(), perPage[id]); err != nil {
			return err
		}
	}
	return nil
}
