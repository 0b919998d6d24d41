// Package eventlog implements the append-only log that backs the event bus.
//
// # Overview
//
// Each stream is persisted in Pebble under lexicographically ordered keys:
//   - ev/{stream}/m               (metadata: last assigned sequence)
//   - ev/{stream}/e/{seq_be8}     (entries)
//   - ev/{stream}/c/{group}       (durable group cursors)
//
// Records are stored as uvarint(headerLen) | header | payload | crc32c.
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "events")
//	seqs, _ := l.Append(ctx, []AppendRecord{{Header: kind, Payload: body}})
//	items, next, _ := l.Read(ReadOptions{Start: TokenFromSeq(seqs[0]), Limit: 100})
//	woke, _ := l.WaitForAppend(ctx, 200*time.Millisecond)
//	_ = l.CommitCursor(ctx, "pagination", TokenFromSeq(items[len(items)-1].Seq))
//	_, _ = l.TrimConsumed(ctx, []string{"pagination", "projection"})
//
// Cursor commits never regress, so redelivery after a crash starts at the
// first uncommitted entry.
package eventlog
