package eventlog

import (
	"context"
)

// TrimThrough deletes every entry with sequence <= seq using a single range
// tombstone. It is typically called with the lowest group cursor.
func (l *Log) TrimThrough(ctx context.Context, seq uint64) error {
	if seq == 0 {
		return nil
	}
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(KeyEntry(l.stream, 0), KeyEntry(l.stream, seq+1), nil); err != nil {
		return err
	}
	return l.db.CommitBatch(ctx, b)
}

// TrimConsumed trims entries that every listed group has committed past and
// returns the sequence trimmed through. Groups without a cursor hold back
// trimming entirely.
func (l *Log) TrimConsumed(ctx context.Context, groups []string) (uint64, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	var low uint64
	for i, g := range groups {
		tok, ok := l.GetCursor(g)
		if !ok {
			return 0, nil
		}
		if i == 0 || tok.Seq() < low {
			low = tok.Seq()
		}
	}
	if err := l.TrimThrough(ctx, low); err != nil {
		return 0, err
	}
	return low, nil
}
