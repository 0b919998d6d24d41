package pebblestore

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps always|interval|never to a FsyncMode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "always", "":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeUnspecified, errors.Errorf("invalid fsync mode %q; use always|interval|never", s)
	}
}

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Metrics allows observing read/write/commit latencies and sizes. Optional.
	Metrics MetricsHook
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

const lockStripes = 256

// DB wraps a Pebble database instance with fsync policy, keyed conditional
// updates and basic helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook

	// stripes serialize read-modify-write cycles per key. Update never
	// acquires more than one stripe, so callers must not nest Update calls.
	stripes [lockStripes]sync.Mutex
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is requested on every commit instead.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: open %s", opts.DataDir)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewSnapshot creates a consistent view of the database. Caller must Close the snapshot.
func (db *DB) NewSnapshot() *pebble.Snapshot {
	return db.inner.NewSnapshot()
}

// NewBatch creates a new batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits the provided batch with the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	size := b.Len()
	ops := int(b.Count())
	defer func() { db.metrics.ObserveBatchCommit(time.Since(start), ops, size) }()

	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}

// Set sets a key to a value using a small internal batch respecting fsync policy.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

// Delete removes a key using a small internal batch respecting fsync policy.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Get copies the value for the given key. Absent keys return ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewIter creates a raw Pebble iterator with the provided options.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// CompactRange requests compaction of the key range [start, end).
func (db *DB) CompactRange(start, end []byte) error {
	return db.inner.Compact(start, end, true)
}

func (db *DB) stripe(key []byte) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return &db.stripes[h.Sum32()%lockStripes]
}

// UpdateFunc receives the current value of the guarded key (found=false when
// absent) and stages writes into b. Returning an error discards the batch.
type UpdateFunc func(cur []byte, found bool, b *pebble.Batch) error

// Update performs a conditional read-modify-write on key: the read, fn and the
// commit of every write fn staged happen while the key's stripe is held, so
// concurrent Updates on the same key are linearized. The batch is committed
// only when it is non-empty.
func (db *DB) Update(ctx context.Context, key []byte, fn UpdateFunc) error {
	mu := db.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	cur, err := db.Get(key)
	found := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "pebble: update read")
		}
		found = false
		cur = nil
	}
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fn(cur, found, b); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	return db.CommitBatch(ctx, b)
}

// SetIfAbsent writes value under key unless the key already exists. It
// returns the stored value (the existing one when another writer won) and
// whether this call inserted it. extra may stage additional writes that
// commit atomically with the insert.
func (db *DB) SetIfAbsent(ctx context.Context, key, value []byte, extra func(b *pebble.Batch) error) ([]byte, bool, error) {
	var stored []byte
	inserted := false
	err := db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if found {
			stored = cur
			return nil
		}
		if err := b.Set(key, value, nil); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(b); err != nil {
				return err
			}
		}
		stored = value
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, inserted, nil
}

// Incr atomically adds delta to the big-endian uint64 counter at key and
// returns the new value. Missing counters start at zero.
func (db *DB) Incr(ctx context.Context, key []byte, delta uint64) (uint64, error) {
	var next uint64
	err := db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		var prev uint64
		if found && len(cur) >= 8 {
			prev = binary.BigEndian.Uint64(cur[:8])
		}
		next = prev + delta
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next)
		return b.Set(key, buf[:], nil)
	})
	return next, err
}

// ScanPrefix visits every key with the given prefix in ascending order until
// fn returns false or an error.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	iter, err := db.inner.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: PrefixEnd(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// DeletePrefix removes every key under prefix with a single range tombstone.
func (db *DB) DeletePrefix(ctx context.Context, prefix []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(prefix, PrefixEnd(prefix), nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// PrefixEnd returns the smallest key greater than every key with prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
