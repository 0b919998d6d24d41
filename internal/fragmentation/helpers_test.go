package fragmentation

import (
	"testing"

	"github.com/cockroachdb/pebble"
)

func openBatch(t *testing.T, s *PebbleMemberStore) *pebble.Batch {
	t.Helper()
	b := s.db.NewBatch()
	t.Cleanup(func() { _ = b.Close() })
	return b
}
