package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	cfgpkg "github.com/rzbill/ldes/internal/config"
	"github.com/rzbill/ldes/internal/eventlog"
	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/internal/pagination"
	"github.com/rzbill/ldes/internal/projection"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
	"github.com/rzbill/ldes/internal/timebased"
	"github.com/rzbill/ldes/internal/view"
	"github.com/rzbill/ldes/pkg/log"
)

// EventStream is the event log stream carrying the bus.
const EventStream = "events"

// PaginationGroup is the bus subscriber group of the pagination service.
const PaginationGroup = "pagination"

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to a logger built from Config.LogLevel/LogFormat.
	Logger log.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
	Bus     events.BusOptions
	// Pipeline overrides pagination tuning; Parallelism defaults to
	// Config.Parallelism.
	Pipeline pagination.PipelineOptions
	// Background starts the pagination, sealing and trimming tickers.
	Background bool
}

// Runtime wires storage, the event bus and the fragmentation and pagination
// services for a single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	logger  log.Logger
	metrics *metrics.Metrics

	bus           *events.Bus
	outbox        *events.Outbox
	fragments     *fragment.Store
	buckets       *fragmentation.PebbleBucketStore
	members       *fragmentation.PebbleMemberStore
	pages         *pagination.Store
	views         *view.Registry
	fragmentation *fragmentation.Service
	pagination    *pagination.Service
	sealer        *timebased.Sealer

	mu        sync.Mutex
	timeViews map[fragment.ViewName]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open initializes storage, restores the stored views and ensures the views
// declared in the configuration.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	logger := opts.Logger
	if logger == nil {
		l, err := log.ApplyConfig(&log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			return nil, err
		}
		logger = l
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		Metrics:       m.StorageHook(),
	})
	if err != nil {
		return nil, err
	}
	evlog, err := eventlog.OpenLog(db, EventStream)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rt := &Runtime{
		db:        db,
		config:    cfg,
		logger:    logger,
		metrics:   m,
		bus:       events.NewBus(evlog, logger.With(log.Component("events")), opts.Bus),
		fragments: fragment.NewStore(db),
		buckets:   fragmentation.NewPebbleBucketStore(db),
		members:   fragmentation.NewPebbleMemberStore(db),
		views:     view.NewRegistry(db),
		timeViews: make(map[fragment.ViewName]bool),
	}
	rt.outbox = events.NewOutbox(db, rt.bus)
	rt.pages = pagination.NewStore(db, rt.members)
	rt.fragmentation = fragmentation.NewService(rt.buckets, rt.members, rt.bus, logger, m, cfg.Parallelism)
	pipeline := opts.Pipeline
	if pipeline.Parallelism == 0 {
		pipeline.Parallelism = cfg.Parallelism
	}
	rt.pagination = pagination.NewService(pagination.Deps{
		Buckets:   rt.buckets,
		Members:   rt.members,
		Sequences: rt.pages,
		Pages:     rt.pages,
		Writer:    rt.pages,
		Fragments: rt.fragments,
		Outbox:    rt.outbox,
		Metrics:   m,
		Logger:    logger,
	}, pipeline)
	rt.sealer = timebased.NewSealer(rt.buckets, rt.fragments, logger)

	if err := rt.start(opts.Background); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) start(background bool) error {
	ctx := context.Background()
	projector := projection.NewProjector(r.fragments, r.logger)
	if err := r.bus.Subscribe(projection.Group, projector.Handle, projection.Kinds()...); err != nil {
		return err
	}
	if err := r.bus.Subscribe(PaginationGroup, r.pagination.Handle, pagination.Subscriptions()...); err != nil {
		return err
	}
	// Relations staged by a previous process that stopped before publishing.
	if err := r.outbox.FlushAll(ctx); err != nil {
		return errors.Wrap(err, "flush outbox")
	}

	stored, err := r.views.List()
	if err != nil {
		return err
	}
	for _, d := range stored {
		if err := r.register(d); err != nil {
			return errors.Wrapf(err, "restore view %s", d.Name)
		}
		if err := r.pagination.InitView(ctx, d.Name, d.Pagination); err != nil {
			return errors.Wrapf(err, "restore view %s", d.Name)
		}
	}
	for _, vc := range r.config.Views {
		d, err := vc.Definition()
		if err != nil {
			return err
		}
		if _, _, err := r.CreateView(ctx, d); err != nil {
			return err
		}
	}
	r.logger.Info("runtime opened", log.Str("data_dir", r.config.DataDir), log.Int("views", len(stored)))

	if background {
		bctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.every(bctx, r.config.PaginationIntervalMs, func(context.Context) { r.pagination.TriggerAll() })
		r.every(bctx, r.config.PaginationIntervalMs, r.flushOutbox)
		r.every(bctx, r.config.SealIntervalMs, r.sealAll)
		r.every(bctx, r.config.SealIntervalMs, r.trim)
	}
	return nil
}

func (r *Runtime) every(ctx context.Context, ms int, fn func(context.Context)) {
	if ms <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Duration(ms) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// register builds the strategy chain of d and hands it to fragmentation.
func (r *Runtime) register(d view.Definition) error {
	chain, timeBased, err := r.buildChain(d)
	if err != nil {
		return err
	}
	r.fragmentation.Register(d.Name, chain)
	r.mu.Lock()
	r.timeViews[d.Name] = timeBased
	r.mu.Unlock()
	return nil
}

// buildChain wraps strategies innermost first, so the first declared
// fragmentation runs first and leaves end at fragmentation.Leaf.
func (r *Runtime) buildChain(d view.Definition) (fragmentation.Chain, bool, error) {
	filter, err := fragmentation.NewMemberFilter(d.MemberFilter)
	if err != nil {
		return fragmentation.Chain{}, false, err
	}
	var strategy fragmentation.Strategy = fragmentation.Leaf{}
	timeBased := false
	for i := len(d.Fragmentations) - 1; i >= 0; i-- {
		f := d.Fragmentations[i]
		switch f.Name {
		case timebased.StrategyName:
			s, err := timebased.Build(f.Properties, strategy, r.buckets, r.outbox, r.metrics, r.logger)
			if err != nil {
				return fragmentation.Chain{}, false, err
			}
			strategy = s
			timeBased = true
		default:
			return fragmentation.Chain{}, false, errors.Errorf("unknown fragmentation %q", f.Name)
		}
	}
	return fragmentation.Chain{Strategy: strategy, Filter: filter}, timeBased, nil
}

// CreateView validates and stores d. A new view is announced with
// ViewInitialized; an existing one keeps its stored definition.
func (r *Runtime) CreateView(ctx context.Context, d view.Definition) (view.Definition, bool, error) {
	if _, _, err := r.buildChain(d); err != nil {
		return view.Definition{}, false, errors.Wrapf(err, "view %s", d.Name)
	}
	if _, err := pagination.ParseConfig(d.Pagination); err != nil {
		return view.Definition{}, false, errors.Wrapf(err, "view %s", d.Name)
	}
	stored, created, err := r.views.Ensure(ctx, d)
	if err != nil {
		return view.Definition{}, false, err
	}
	if err := r.register(stored); err != nil {
		return view.Definition{}, false, err
	}
	if created {
		if err := r.bus.Publish(ctx, events.ViewInitialized{View: stored.Name, Pagination: stored.Pagination}); err != nil {
			return view.Definition{}, false, err
		}
		r.logger.Info("view created", log.Str("view", stored.Name.String()))
	}
	return stored, created, nil
}

// DeleteView removes a view. Buckets and pending members go at once;
// pagination state and fragments are removed by their event consumers.
func (r *Runtime) DeleteView(ctx context.Context, name fragment.ViewName) error {
	existed, err := r.views.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !existed {
		return errors.Wrapf(view.ErrNotFound, "view %s", name)
	}
	r.mu.Lock()
	delete(r.timeViews, name)
	r.mu.Unlock()
	if err := r.fragmentation.DeleteView(ctx, name); err != nil {
		return err
	}
	if err := r.outbox.DeleteView(ctx, name); err != nil {
		return err
	}
	return r.bus.Publish(ctx, events.ViewDeleted{View: name})
}

// Views lists the stored view definitions.
func (r *Runtime) Views() ([]view.Definition, error) { return r.views.List() }

// Ingest bucketises members into view.
func (r *Runtime) Ingest(ctx context.Context, name fragment.ViewName, members []fragmentation.Member) (fragmentation.Result, error) {
	return r.fragmentation.Bucketise(ctx, name, members)
}

// Fragment returns the stored fragment with id.
func (r *Runtime) Fragment(ctx context.Context, id fragment.Identifier) (*fragment.Fragment, error) {
	return r.fragments.Retrieve(ctx, id)
}

// Fragments lists every fragment of view.
func (r *Runtime) Fragments(ctx context.Context, name fragment.ViewName) ([]*fragment.Fragment, error) {
	return r.fragments.ListByView(ctx, name)
}

// Paginate runs the pagination pipeline of view once and waits for it.
func (r *Runtime) Paginate(ctx context.Context, name fragment.ViewName) error {
	p, ok := r.pagination.Pipeline(name)
	if !ok {
		return errors.Wrapf(view.ErrNotFound, "no pagination pipeline for %s", name)
	}
	return p.Run(ctx)
}

// Drain waits until every event published so far has been handled by the
// projection and pagination consumers.
func (r *Runtime) Drain(ctx context.Context) error { return r.bus.WaitIdle(ctx) }

// Seal seals the elapsed time windows of every time-based view.
func (r *Runtime) Seal(ctx context.Context) (int, error) {
	r.mu.Lock()
	names := make([]fragment.ViewName, 0, len(r.timeViews))
	for name, tb := range r.timeViews {
		if tb {
			names = append(names, name)
		}
	}
	r.mu.Unlock()
	total := 0
	for _, name := range names {
		n, err := r.sealer.SealElapsed(ctx, name)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "seal view %s", name)
		}
	}
	return total, nil
}

func (r *Runtime) sealAll(ctx context.Context) {
	if _, err := r.Seal(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("sealing failed", log.Err(err))
	}
}

func (r *Runtime) flushOutbox(ctx context.Context) {
	if err := r.outbox.FlushAll(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("outbox flush failed", log.Err(err))
	}
}

func (r *Runtime) trim(ctx context.Context) {
	if _, err := r.bus.Trim(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("event log trim failed", log.Err(err))
	}
}

// Close stops background work, the services and the bus, then closes the db.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.pagination != nil {
		r.pagination.Close()
	}
	if r.bus != nil {
		_ = r.bus.Close()
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Metrics returns the runtime's metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
