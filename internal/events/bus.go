package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/eventlog"
	"github.com/rzbill/ldes/pkg/log"
)

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("events: bus closed")

// Handler processes one event. Returning an error causes redelivery with
// backoff; wrap it with Permanent to drop the event immediately.
type Handler func(ctx context.Context, env Envelope) error

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// BusOptions tunes delivery.
type BusOptions struct {
	// PollInterval bounds how long an idle subscriber sleeps between reads.
	PollInterval time.Duration
	// BatchSize is the number of entries read per round.
	BatchSize int
	// NewBackOff builds the redelivery policy for one event.
	NewBackOff func() backoff.BackOff
}

func (o *BusOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 128
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 10 * time.Millisecond
			eb.MaxElapsedTime = 30 * time.Second
			return eb
		}
	}
}

// Bus is a Publisher backed by an event log. Each subscriber group reads the
// log from its own durable cursor, so a restarted process resumes after the
// last committed event and delivery is at least once.
type Bus struct {
	log    *eventlog.Log
	logger log.Logger
	opts   BusOptions
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	groups map[string]struct{}
	closed bool
}

var _ Publisher = (*Bus)(nil)

func NewBus(l *eventlog.Log, logger log.Logger, opts BusOptions) *Bus {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		log:    l,
		logger: logger.With(log.Component("events")),
		opts:   opts,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		groups: make(map[string]struct{}),
	}
}

// Publish appends evs atomically, in order.
func (b *Bus) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	recs := make([]eventlog.AppendRecord, 0, len(evs))
	now := b.now()
	for _, ev := range evs {
		header, payload, err := encode(ev, now)
		if err != nil {
			return err
		}
		recs = append(recs, eventlog.AppendRecord{Header: header, Payload: payload})
	}
	if _, err := b.log.Append(ctx, recs); err != nil {
		return errors.Wrap(err, "events: publish")
	}
	return nil
}

// Subscribe starts delivering events of the given kinds (all kinds when none
// are listed) to h under the durable group name.
func (b *Bus) Subscribe(group string, h Handler, kinds ...Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, dup := b.groups[group]; dup {
		return errors.Errorf("events: group %q already subscribed", group)
	}
	b.groups[group] = struct{}{}

	accept := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		accept[k] = true
	}
	b.wg.Add(1)
	go b.run(group, h, accept)
	return nil
}

// Groups lists the subscribed group names.
func (b *Bus) Groups() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.groups))
	for g := range b.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Trim drops entries every subscribed group has consumed.
func (b *Bus) Trim(ctx context.Context) (uint64, error) {
	return b.log.TrimConsumed(ctx, b.Groups())
}

// WaitIdle blocks until every subscribed group has committed past the last
// event appended before the call.
func (b *Bus) WaitIdle(ctx context.Context) error {
	target := b.log.LastSeq()
	for {
		if caught, err := b.caughtUp(target); err != nil || caught {
			return err
		}
		timer := time.NewTimer(b.opts.PollInterval / 4)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bus) caughtUp(target uint64) (bool, error) {
	if target == 0 {
		return true, nil
	}
	cursors, err := b.log.Cursors()
	if err != nil {
		return false, err
	}
	for _, g := range b.Groups() {
		if tok, ok := cursors[g]; !ok || tok.Seq() < target {
			return false, nil
		}
	}
	return true, nil
}

// Close stops every subscriber and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *Bus) run(group string, h Handler, accept map[Kind]bool) {
	defer b.wg.Done()
	ctx := b.ctx
	logger := b.logger.With(log.Str("group", group))

	var pos eventlog.Token
	if tok, ok := b.log.GetCursor(group); ok {
		pos = tok.After()
	}

	for ctx.Err() == nil {
		changed := b.log.Changes()
		items, _, err := b.log.Read(eventlog.ReadOptions{Start: pos, Limit: b.opts.BatchSize})
		if err != nil {
			logger.Error("read events", log.Err(err))
		}
		if len(items) == 0 {
			b.idle(ctx, changed)
			continue
		}

		var handled uint64
		for _, it := range items {
			env, err := decode(it.Seq, it.Header, it.Payload)
			if err != nil {
				logger.Error("skipping undecodable event", log.Err(err), log.Uint64("seq", it.Seq))
			} else if len(accept) == 0 || accept[env.Event.Kind()] {
				if !b.deliver(ctx, logger, h, env) {
					break
				}
			}
			handled = it.Seq
		}
		if handled == 0 {
			continue
		}
		// commit with a fresh context so progress made before shutdown sticks
		if err := b.log.CommitCursor(context.Background(), group, eventlog.TokenFromSeq(handled)); err != nil {
			logger.Error("commit cursor", log.Err(err), log.Uint64("seq", handled))
		}
		pos = eventlog.TokenFromSeq(handled).After()
	}
}

func (b *Bus) idle(ctx context.Context, changed <-chan struct{}) {
	timer := time.NewTimer(b.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// deliver retries h until it succeeds, returns a permanent error, or the
// backoff gives up. It reports false only when ctx ended first.
func (b *Bus) deliver(ctx context.Context, logger log.Logger, h Handler, env Envelope) bool {
	attempt := 0
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempt++
		if err := h(ctx, env); err != nil {
			logger.Warn("event handler failed",
				log.Err(err), log.Str("kind", string(env.Event.Kind())), log.Int("attempt", attempt))
			return err
		}
		return nil
	}, backoff.WithContext(b.opts.NewBackOff(), ctx))
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		logger.Error("dropping event",
			log.Err(err), log.Str("kind", string(env.Event.Kind())), log.Str("event_id", env.ID), log.Uint64("seq", env.Seq))
	}
	return true
}
