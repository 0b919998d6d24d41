// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// snapshots, batches, keyed conditional updates and minimal metrics hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Insert-if-absent: exactly one concurrent caller observes inserted=true
//	stored, inserted, _ := db.SetIfAbsent(ctx, key, value, nil)
//
//	// Counters
//	next, _ := db.Incr(ctx, []byte("seq/bucket"), 1)
//
//	// Arbitrary read-modify-write linearized per key
//	_ = db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
//	    return b.Set(key, mutate(cur), nil)
//	})
//
// The stores in internal/fragment, internal/fragmentation and
// internal/pagination build their insert-if-absent and increment-if-below
// operations on Update.
package pebblestore
