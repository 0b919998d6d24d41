package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testMetrics struct {
	mu           sync.Mutex
	wrote        int
	read         int
	batchCommits int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) {
	m.mu.Lock()
	m.wrote += bytes
	m.mu.Unlock()
}

func (m *testMetrics) ObserveRead(d time.Duration, bytes int) {
	m.mu.Lock()
	m.read += bytes
	m.mu.Unlock()
}

func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.mu.Lock()
	m.batchCommits++
	m.batchBytes += bytes
	m.mu.Unlock()
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t)

	key := []byte("k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}

	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); err == nil {
		t.Fatalf("expected not found after delete")
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t)

	b := db.NewBatch()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 {
		t.Fatalf("want 1 batch commit, got %d", metrics.batchCommits)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	db, _ := newTestDB(t)

	key := []byte("k2")
	if err := db.Set(key, []byte("old")); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := db.NewSnapshot()
	defer snap.Close()

	// mutate after snapshot
	if err := db.Set(key, []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}

	// read via snapshot should see old
	valOld, closer, err := snap.Get(key)
	if err != nil {
		t.Fatalf("snap get: %v", err)
	}
	if string(valOld) != "old" {
		t.Fatalf("snapshot saw %q want %q", valOld, "old")
	}
	closer.Close()

	// read via DB should see new
	valNew, err := db.Get(key)
	if err != nil {
		t.Fatalf("db get: %v", err)
	}
	if string(valNew) != "new" {
		t.Fatalf("db saw %q want %q", valNew, "new")
	}
}

func TestSetIfAbsentSingleWinner(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	key := []byte("bucket/2023")

	const callers = 32
	var wg sync.WaitGroup
	var winners atomic.Int32
	stored := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val := []byte(fmt.Sprintf("v%d", i))
			got, inserted, err := db.SetIfAbsent(ctx, key, val, nil)
			if err != nil {
				t.Errorf("set if absent: %v", err)
				return
			}
			if inserted {
				winners.Add(1)
			}
			stored[i] = got
		}(i)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("want exactly one inserter, got %d", winners.Load())
	}
	final, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, s := range stored {
		if string(s) != string(final) {
			t.Fatalf("caller %d saw %q, stored value is %q", i, s, final)
		}
	}
}

func TestIncr(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	for want := uint64(1); want <= 3; want++ {
		got, err := db.Incr(ctx, []byte("ctr"), 1)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("got %d want %d", got, want)
		}
	}
}

func TestScanAndDeletePrefix(t *testing.T) {
	db, _ := newTestDB(t)
	for _, k := range []string{"p/a", "p/b", "q/a"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	var seen []string
	if err := db.ScanPrefix([]byte("p/"), func(k, _ []byte) (bool, error) {
		seen = append(seen, string(k))
		return true, nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 2 || seen[0] != "p/a" || seen[1] != "p/b" {
		t.Fatalf("unexpected scan %v", seen)
	}
	if err := db.DeletePrefix(context.Background(), []byte("p/")); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, err := db.Get([]byte("p/a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := db.Get([]byte("q/a")); err != nil {
		t.Fatalf("q/a should survive: %v", err)
	}
}
