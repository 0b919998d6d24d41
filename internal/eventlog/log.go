package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"

	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// ErrClosed is returned by waits on a closed Log.
var ErrClosed = errors.New("eventlog: closed")

// AppendRecord represents a single appendable event. Header carries the
// event kind, Payload its encoded body.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log is an append-only, durably sequenced stream of records.
type Log struct {
	db     *pebblestore.DB
	stream string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
	closed   bool
}

// OpenLog initializes a Log and loads the last sequence from metadata.
func OpenLog(db *pebblestore.DB, stream string) (*Log, error) {
	if stream == "" {
		return nil, pkgerrors.New("eventlog: stream name is required")
	}
	l := &Log{db: db, stream: stream, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyMeta(stream))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, pkgerrors.Wrapf(err, "eventlog: load meta for %s", stream)
	}
	return l, nil
}

// Stream returns the stream name.
func (l *Log) Stream() string { return l.stream }

// LastSeq returns the last assigned sequence, 0 when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append appends the provided records as a single atomic batch and returns
// the assigned sequence numbers.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	next := l.lastSeq
	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		next++
		if err := b.Set(KeyEntry(l.stream, next), EncodeRecord(r.Header, r.Payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(KeyMeta(l.stream), meta[:], nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, pkgerrors.Wrap(err, "eventlog: append")
	}
	l.lastSeq = next

	if !l.closed {
		close(l.notifyCh)
		l.notifyCh = make(chan struct{})
	}
	return seqs, nil
}

// Close wakes every waiter. Appends after Close still succeed.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.notifyCh)
}
