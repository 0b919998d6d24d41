package pagination

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// SequenceStore hands out page sequence numbers 1, 2, 3, ... per bucket.
type SequenceStore interface {
	AllocateNext(ctx context.Context, view fragment.ViewName, bucketID int64) (int64, error)
	DeleteView(ctx context.Context, view fragment.ViewName) error
}

// PageStore persists pages. IncrementIfBelow and SealIfOpen are atomic on
// the page record.
type PageStore interface {
	Open(ctx context.Context, view fragment.ViewName, bucketID int64) (Page, bool, error)
	Insert(ctx context.Context, p Page, stage func(b *pebble.Batch, inserted Page) error) (Page, error)
	IncrementIfBelow(ctx context.Context, p Page, limit int) (int, bool, error)
	SealIfOpen(ctx context.Context, p Page) (bool, error)
	Get(ctx context.Context, view fragment.ViewName, id int64) (Page, error)
	ListByBucket(ctx context.Context, view fragment.ViewName, bucketID int64) ([]Page, error)
	DeleteView(ctx context.Context, view fragment.ViewName) error
}

// AssignmentWriter stores page assignments and consumes the pending rows
// they came from in one atomic write.
type AssignmentWriter interface {
	Write(ctx context.Context, assignments []PageAssignment, consumed []fragmentation.BucketisedMember) error
	Assignments(ctx context.Context, view fragment.ViewName, pageID int64) ([]PageAssignment, error)
	DeleteView(ctx context.Context, view fragment.ViewName) error
}

// PendingRemover stages removal of pending bucketised members into a batch.
type PendingRemover interface {
	StageRemove(b *pebble.Batch, members []fragmentation.BucketisedMember) error
}

// Store implements SequenceStore, PageStore and AssignmentWriter on Pebble.
type Store struct {
	db      *pebblestore.DB
	pending PendingRemover
}

func NewStore(db *pebblestore.DB, pending PendingRemover) *Store {
	return &Store{db: db, pending: pending}
}

var (
	_ SequenceStore    = (*Store)(nil)
	_ PageStore        = (*Store)(nil)
	_ AssignmentWriter = (*Store)(nil)
)

func (s *Store) AllocateNext(ctx context.Context, view fragment.ViewName, bucketID int64) (int64, error) {
	seq, err := s.db.Incr(ctx, sequenceKey(view, bucketID), 1)
	if err != nil {
		return 0, errors.Wrapf(err, "allocate page sequence for bucket %d", bucketID)
	}
	return int64(seq), nil
}

// Open returns the page currently accepting members of a bucket.
func (s *Store) Open(ctx context.Context, view fragment.ViewName, bucketID int64) (Page, bool, error) {
	raw, err := s.db.Get(openPageKey(view, bucketID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, errors.Wrapf(err, "open page of bucket %d", bucketID)
	}
	p, err := s.page(view, bucketID, int64(binary.BigEndian.Uint64(raw)))
	if errors.Is(err, ErrPageNotFound) {
		return Page{}, false, nil
	}
	return p, err == nil && !p.Immutable, err
}

// Insert assigns an id and stores p as the open page of its bucket. It fails
// if the sequence is already taken. Writes staged by stage commit with the
// page.
func (s *Store) Insert(ctx context.Context, p Page, stage func(b *pebble.Batch, inserted Page) error) (Page, error) {
	id, err := s.db.Incr(ctx, pageIDCounterKey, 1)
	if err != nil {
		return Page{}, errors.Wrap(err, "allocate page id")
	}
	p.ID = int64(id)
	raw, err := json.Marshal(p)
	if err != nil {
		return Page{}, err
	}
	var ref [16]byte
	binary.BigEndian.PutUint64(ref[:8], uint64(p.BucketID))
	binary.BigEndian.PutUint64(ref[8:], uint64(p.Sequence))
	_, inserted, err := s.db.SetIfAbsent(ctx, pageKey(p.View, p.BucketID, p.Sequence), raw, func(b *pebble.Batch) error {
		if err := b.Set(pageIDKey(p.View, p.ID), ref[:], nil); err != nil {
			return err
		}
		if err := b.Set(openPageKey(p.View, p.BucketID), ref[8:], nil); err != nil {
			return err
		}
		if stage != nil {
			return stage(b, p)
		}
		return nil
	})
	if err != nil {
		return Page{}, errors.Wrapf(err, "insert page %d of bucket %d", p.Sequence, p.BucketID)
	}
	if !inserted {
		return Page{}, errors.Errorf("page %d of bucket %d already exists", p.Sequence, p.BucketID)
	}
	return p, nil
}

// IncrementIfBelow claims the next slot of p when fewer than limit members
// are assigned and the page is not sealed. It returns the 1-based index.
func (s *Store) IncrementIfBelow(ctx context.Context, p Page, limit int) (int, bool, error) {
	key := pageKey(p.View, p.BucketID, p.Sequence)
	index, ok := 0, false
	err := s.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if !found {
			return errors.Wrapf(ErrPageNotFound, "page %d", p.ID)
		}
		var stored Page
		if err := json.Unmarshal(cur, &stored); err != nil {
			return err
		}
		if stored.Immutable || stored.Assigned >= limit {
			return nil
		}
		stored.Assigned++
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		index, ok = stored.Assigned, true
		return b.Set(key, raw, nil)
	})
	return index, ok, err
}

// SealIfOpen marks p immutable and clears it as the bucket's open page. It
// reports false when another caller sealed it first.
func (s *Store) SealIfOpen(ctx context.Context, p Page) (bool, error) {
	key := pageKey(p.View, p.BucketID, p.Sequence)
	sealed := false
	err := s.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		if !found {
			return errors.Wrapf(ErrPageNotFound, "page %d", p.ID)
		}
		var stored Page
		if err := json.Unmarshal(cur, &stored); err != nil {
			return err
		}
		if stored.Immutable {
			return nil
		}
		stored.Immutable = true
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		sealed = true
		if err := b.Set(key, raw, nil); err != nil {
			return err
		}
		return b.Delete(openPageKey(p.View, p.BucketID), nil)
	})
	return sealed, err
}

func (s *Store) Get(ctx context.Context, view fragment.ViewName, id int64) (Page, error) {
	ref, err := s.db.Get(pageIDKey(view, id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Page{}, errors.Wrapf(ErrPageNotFound, "page %d of %s", id, view)
	}
	if err != nil {
		return Page{}, err
	}
	return s.page(view, int64(binary.BigEndian.Uint64(ref[:8])), int64(binary.BigEndian.Uint64(ref[8:])))
}

// ListByBucket returns the pages of a bucket by sequence.
func (s *Store) ListByBucket(ctx context.Context, view fragment.ViewName, bucketID int64) ([]Page, error) {
	var out []Page
	err := s.db.ScanPrefix(pageBucketPrefix(view, bucketID), func(_, v []byte) (bool, error) {
		var p Page
		if err := json.Unmarshal(v, &p); err != nil {
			return false, err
		}
		out = append(out, p)
		return ctx.Err() == nil, ctx.Err()
	})
	return out, err
}

func (s *Store) page(view fragment.ViewName, bucketID, seq int64) (Page, error) {
	raw, err := s.db.Get(pageKey(view, bucketID, seq))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Page{}, errors.Wrapf(ErrPageNotFound, "page %d of bucket %d", seq, bucketID)
	}
	if err != nil {
		return Page{}, err
	}
	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return Page{}, errors.Wrap(err, "decode page")
	}
	return p, nil
}

func (s *Store) Write(ctx context.Context, assignments []PageAssignment, consumed []fragmentation.BucketisedMember) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, a := range assignments {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if err := b.Set(assignmentKey(a), raw, nil); err != nil {
			return err
		}
	}
	if s.pending != nil {
		if err := s.pending.StageRemove(b, consumed); err != nil {
			return err
		}
	}
	return errors.Wrap(s.db.CommitBatch(ctx, b), "write page assignments")
}

// Assignments returns the members of a page by index.
func (s *Store) Assignments(ctx context.Context, view fragment.ViewName, pageID int64) ([]PageAssignment, error) {
	var out []PageAssignment
	err := s.db.ScanPrefix(assignmentPagePrefix(view, pageID), func(_, v []byte) (bool, error) {
		var a PageAssignment
		if err := json.Unmarshal(v, &a); err != nil {
			return false, err
		}
		out = append(out, a)
		return ctx.Err() == nil, ctx.Err()
	})
	return out, err
}

// DeleteView drops every page, sequence and assignment of view.
func (s *Store) DeleteView(ctx context.Context, view fragment.ViewName) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, prefix := range [][]byte{pageViewPrefix(view), assignmentViewPrefix(view)} {
		if err := b.DeleteRange(prefix, pebblestore.PrefixEnd(prefix), nil); err != nil {
			return err
		}
	}
	return errors.Wrapf(s.db.CommitBatch(ctx, b), "delete pagination state of %s", view)
}
