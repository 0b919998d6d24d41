package eventlog

import (
	"context"
	"testing"

	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	l, err := OpenLog(db, "events")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func TestAppendAssignsSequential(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	seqs, err := l.Append(ctx, []AppendRecord{{Header: []byte("h1"), Payload: []byte("p1")}, {Header: []byte("h2"), Payload: []byte("p2")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("want seqs [1 2], got %v", seqs)
	}
	if l.LastSeq() != 2 {
		t.Fatalf("last seq: %d", l.LastSeq())
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := OpenLog(db, "events")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	ctx := context.Background()
	seqs, err := l.Append(ctx, []AppendRecord{{Payload: []byte("x")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, "events")
	if err != nil {
		t.Fatalf("open log2: %v", err)
	}
	seqs2, err := l2.Append(ctx, []AppendRecord{{Payload: []byte("y")}})
	if err != nil {
		t.Fatalf("append2: %v", err)
	}
	if !(seqs[0] < seqs2[0]) {
		t.Fatalf("expected next seq > previous: prev=%d next=%d", seqs[0], seqs2[0])
	}
}

func TestStreamsAreIsolated(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	a, _ := OpenLog(db, "a")
	b, _ := OpenLog(db, "b")
	if _, err := a.Append(context.Background(), []AppendRecord{{Payload: []byte("1")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	items, _, err := b.Read(ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("stream b should be empty, got %d", len(items))
	}
}

func TestTrimConsumed(t *testing.T) {
	l, seqs := seedLog(t, 5)
	ctx := context.Background()
	if err := l.CommitCursor(ctx, "g1", TokenFromSeq(seqs[3])); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if through, err := l.TrimConsumed(ctx, []string{"g1", "g2"}); err != nil || through != 0 {
		t.Fatalf("group without cursor must hold back trimming: %d %v", through, err)
	}
	if err := l.CommitCursor(ctx, "g2", TokenFromSeq(seqs[1])); err != nil {
		t.Fatalf("commit: %v", err)
	}
	through, err := l.TrimConsumed(ctx, []string{"g1", "g2"})
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if through != seqs[1] {
		t.Fatalf("trimmed through %d, want %d", through, seqs[1])
	}
	items, _, err := l.Read(ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 || items[0].Seq != seqs[2] {
		t.Fatalf("unexpected survivors: %+v", items)
	}
}
