package events

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// Keyspace (view names never contain NUL):
// - ob/{view}\x00{key}   staged events (JSON outboxEntry)

var outboxPrefix = []byte("ob/")

func outboxViewPrefix(view fragment.ViewName) []byte {
	k := append([]byte(nil), outboxPrefix...)
	k = append(k, view.String()...)
	return append(k, 0)
}

func outboxKey(view fragment.ViewName, key string) []byte {
	return append(outboxViewPrefix(view), key...)
}

type stagedEvent struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type outboxEntry struct {
	// Claim holds the token of the Outbox publishing the entry.
	Claim  string        `json:"claim,omitempty"`
	Events []stagedEvent `json:"events"`
}

func (e outboxEntry) decode() ([]Event, error) {
	evs := make([]Event, 0, len(e.Events))
	for _, se := range e.Events {
		dec, ok := decoders[se.Kind]
		if !ok {
			return nil, errors.Errorf("events: unknown staged kind %q", se.Kind)
		}
		ev, err := dec(se.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "events: decode staged %s", se.Kind)
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// Outbox holds events written in the same Pebble batch as the state change
// that implies them, until they reach the Publisher. A Flush claims an entry
// before publishing so concurrent flushes of one key publish it once; a
// failed publish releases the claim and the next Flush tries again.
//
// Claims carry a per-Outbox token. Entries still claimed by a previous
// process are taken over by FlushAll.
type Outbox struct {
	db    *pebblestore.DB
	pub   Publisher
	token string
}

func NewOutbox(db *pebblestore.DB, pub Publisher) *Outbox {
	return &Outbox{db: db, pub: pub, token: uuid.NewString()}
}

// Stage writes evs under (view, key) into b. Staging twice under one key
// before a flush keeps only the last events.
func (o *Outbox) Stage(b *pebble.Batch, view fragment.ViewName, key string, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	entry := outboxEntry{Events: make([]stagedEvent, 0, len(evs))}
	for _, ev := range evs {
		if _, ok := decoders[ev.Kind()]; !ok {
			return errors.Errorf("events: unknown kind %q", ev.Kind())
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrapf(err, "events: encode %s", ev.Kind())
		}
		entry.Events = append(entry.Events, stagedEvent{Kind: ev.Kind(), Data: data})
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Set(outboxKey(view, key), raw, nil)
}

// Flush publishes the events staged under (view, key) and clears them. It
// returns nil when nothing is staged or this Outbox is already publishing
// the entry.
func (o *Outbox) Flush(ctx context.Context, view fragment.ViewName, key string) error {
	return o.flush(ctx, outboxKey(view, key))
}

// FlushPrefix flushes every key of view starting with prefix, in key order.
// It keeps going past failures and returns the first error.
func (o *Outbox) FlushPrefix(ctx context.Context, view fragment.ViewName, prefix string) error {
	return o.flushScan(ctx, outboxKey(view, prefix))
}

// FlushAll flushes every staged entry of every view, including entries
// claimed by an Outbox that no longer runs.
func (o *Outbox) FlushAll(ctx context.Context) error {
	return o.flushScan(ctx, outboxPrefix)
}

// DeleteView drops the entries staged for view without publishing them.
func (o *Outbox) DeleteView(ctx context.Context, view fragment.ViewName) error {
	return errors.Wrapf(o.db.DeletePrefix(ctx, outboxViewPrefix(view)), "delete outbox of %s", view)
}

func (o *Outbox) flushScan(ctx context.Context, prefix []byte) error {
	var keys [][]byte
	err := o.db.ScanPrefix(prefix, func(k, _ []byte) (bool, error) {
		keys = append(keys, append([]byte(nil), k...))
		return true, nil
	})
	if err != nil {
		return errors.Wrap(err, "outbox: scan")
	}
	var first error
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.flush(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (o *Outbox) flush(ctx context.Context, key []byte) error {
	if _, err := o.db.Get(key); errors.Is(err, pebblestore.ErrNotFound) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "outbox: read")
	}

	var entry outboxEntry
	claimed := false
	err := o.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if !found {
			return nil
		}
		if err := json.Unmarshal(cur, &entry); err != nil {
			return errors.Wrap(err, "outbox: decode entry")
		}
		if entry.Claim == o.token {
			return nil
		}
		entry.Claim = o.token
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		claimed = true
		return b.Set(key, raw, nil)
	})
	if err != nil || !claimed {
		return err
	}

	evs, err := entry.decode()
	if err == nil {
		err = o.pub.Publish(ctx, evs...)
	}
	if err != nil {
		if rerr := o.release(context.WithoutCancel(ctx), key); rerr != nil {
			return errors.Wrapf(err, "outbox: publish (release failed: %v)", rerr)
		}
		return errors.Wrap(err, "outbox: publish")
	}
	return errors.Wrap(o.db.Delete(key), "outbox: clear")
}

func (o *Outbox) release(ctx context.Context, key []byte) error {
	return o.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if !found {
			return nil
		}
		var entry outboxEntry
		if err := json.Unmarshal(cur, &entry); err != nil {
			return err
		}
		if entry.Claim != o.token {
			return nil
		}
		entry.Claim = ""
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Set(key, raw, nil)
	})
}
