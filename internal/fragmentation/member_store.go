package fragmentation

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// MemberStore keeps bucketised members until pagination picks them up.
type MemberStore interface {
	// AllocateSeqs reserves n consecutive arrival numbers and returns the first.
	AllocateSeqs(ctx context.Context, view fragment.ViewName, n int) (uint64, error)
	Add(ctx context.Context, members []BucketisedMember) error
	PendingBuckets(ctx context.Context, view fragment.ViewName) ([]int64, error)
	Pending(ctx context.Context, view fragment.ViewName, bucketID int64, limit int) ([]BucketisedMember, error)
	DeleteView(ctx context.Context, view fragment.ViewName) error
}

// PebbleMemberStore implements MemberStore on Pebble.
type PebbleMemberStore struct {
	db *pebblestore.DB
}

func NewPebbleMemberStore(db *pebblestore.DB) *PebbleMemberStore {
	return &PebbleMemberStore{db: db}
}

var _ MemberStore = (*PebbleMemberStore)(nil)

func (s *PebbleMemberStore) AllocateSeqs(ctx context.Context, view fragment.ViewName, n int) (uint64, error) {
	if n <= 0 {
		return 0, errors.Errorf("allocate %d member seqs", n)
	}
	last, err := s.db.Incr(ctx, memberSeqKey(view), uint64(n))
	if err != nil {
		return 0, errors.Wrapf(err, "allocate member seqs for %s", view)
	}
	return last - uint64(n) + 1, nil
}

func (s *PebbleMemberStore) Add(ctx context.Context, members []BucketisedMember) error {
	if len(members) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, m := range members {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := b.Set(PendingKey(m), raw, nil); err != nil {
			return err
		}
	}
	return errors.Wrap(s.db.CommitBatch(ctx, b), "add bucketised members")
}

// StageRemove stages deletion of pending rows into b so callers can commit
// it together with the rows that replace them.
func (s *PebbleMemberStore) StageRemove(b *pebble.Batch, members []BucketisedMember) error {
	for _, m := range members {
		if err := b.Delete(PendingKey(m), nil); err != nil {
			return err
		}
	}
	return nil
}

// PendingBuckets lists the ids of buckets holding pending members, skipping
// from one bucket to the next without visiting every row.
func (s *PebbleMemberStore) PendingBuckets(ctx context.Context, view fragment.ViewName) ([]int64, error) {
	prefix := pendingPrefix(view)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []int64
	for ok := iter.First(); ok; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := iter.Key()
		if len(key) < len(prefix)+8 {
			ok = iter.Next()
			continue
		}
		id := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		ids = append(ids, id)
		ok = iter.SeekGE(pebblestore.PrefixEnd(pendingBucketPrefix(view, id)))
	}
	return ids, iter.Error()
}

// Pending returns up to limit pending members of a bucket in arrival order.
func (s *PebbleMemberStore) Pending(ctx context.Context, view fragment.ViewName, bucketID int64, limit int) ([]BucketisedMember, error) {
	var out []BucketisedMember
	err := s.db.ScanPrefix(pendingBucketPrefix(view, bucketID), func(_, v []byte) (bool, error) {
		var m BucketisedMember
		if err := json.Unmarshal(v, &m); err != nil {
			return false, errors.Wrap(err, "decode bucketised member")
		}
		out = append(out, m)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *PebbleMemberStore) DeleteView(ctx context.Context, view fragment.ViewName) error {
	return errors.Wrapf(s.db.DeletePrefix(ctx, memberViewPrefix(view)), "delete members of %s", view)
}
