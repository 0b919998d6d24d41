package eventlog

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// CommitCursor stores the last processed token for a group. Commits that
// would move the cursor backwards are ignored.
func (l *Log) CommitCursor(ctx context.Context, group string, tok Token) error {
	key := KeyCursor(l.stream, group)
	return l.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if found && len(cur) >= 8 && tok.Seq() <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
		return b.Set(key, tok[:], nil)
	})
}

// GetCursor loads the current cursor token for a group.
func (l *Log) GetCursor(group string) (Token, bool) {
	cur, err := l.db.Get(KeyCursor(l.stream, group))
	if err != nil || len(cur) < 8 {
		return Token{}, false
	}
	var t Token
	copy(t[:], cur[:8])
	return t, true
}

// Cursors returns every committed group cursor of the stream.
func (l *Log) Cursors() (map[string]Token, error) {
	prefix := KeyCursorPrefix(l.stream)
	out := make(map[string]Token)
	err := l.db.ScanPrefix(prefix, func(k, v []byte) (bool, error) {
		if len(v) < 8 {
			return true, nil
		}
		var t Token
		copy(t[:], v[:8])
		out[string(bytes.TrimPrefix(k, prefix))] = t
		return true, nil
	})
	return out, err
}

// DeleteCursor forgets a group so it no longer holds back trimming.
func (l *Log) DeleteCursor(group string) error {
	return l.db.Delete(KeyCursor(l.stream, group))
}
