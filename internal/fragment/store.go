package fragment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// Repository persists fragments. Mutating calls create the fragment on
// first reference.
type Repository interface {
	Retrieve(ctx context.Context, id Identifier) (*Fragment, error)
	InsertIfAbsent(ctx context.Context, f *Fragment) (*Fragment, bool, error)
	AddRelation(ctx context.Context, from Identifier, r TreeRelation) error
	IncrementMembers(ctx context.Context, id Identifier, n int) error
	SetNextUpdate(ctx context.Context, id Identifier, t time.Time) error
	MakeImmutable(ctx context.Context, id Identifier) error
	MarkDeleted(ctx context.Context, id Identifier, t time.Time) error
	ListByView(ctx context.Context, view ViewName) ([]*Fragment, error)
	DeleteView(ctx context.Context, view ViewName) error
}

const keyPrefix = "f"

func fragmentKey(id Identifier) []byte {
	return []byte(keyPrefix + id.Key())
}

func viewPrefix(view ViewName) []byte {
	return []byte(keyPrefix + "/" + view.String())
}

// Store is the Pebble Repository.
type Store struct {
	db *pebblestore.DB
}

func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

var _ Repository = (*Store)(nil)

func (s *Store) Retrieve(ctx context.Context, id Identifier) (*Fragment, error) {
	raw, err := s.db.Get(fragmentKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "fragment %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve fragment %s", id)
	}
	return decode(raw)
}

// InsertIfAbsent stores f unless a fragment with an equal identifier exists,
// returning the stored fragment and whether this call inserted it.
func (s *Store) InsertIfAbsent(ctx context.Context, f *Fragment) (*Fragment, bool, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, false, err
	}
	stored, inserted, err := s.db.SetIfAbsent(ctx, fragmentKey(f.ID), raw, nil)
	if err != nil {
		return nil, false, errors.Wrapf(err, "insert fragment %s", f.ID)
	}
	if inserted {
		return f, true, nil
	}
	existing, err := decode(stored)
	return existing, false, err
}

func (s *Store) AddRelation(ctx context.Context, from Identifier, r TreeRelation) error {
	return s.mutate(ctx, from, func(f *Fragment) { f.AddRelation(r) })
}

func (s *Store) IncrementMembers(ctx context.Context, id Identifier, n int) error {
	return s.mutate(ctx, id, func(f *Fragment) { f.MembersAdded += n })
}

func (s *Store) SetNextUpdate(ctx context.Context, id Identifier, t time.Time) error {
	return s.mutate(ctx, id, func(f *Fragment) { f.SetNextUpdate(t) })
}

func (s *Store) MakeImmutable(ctx context.Context, id Identifier) error {
	return s.mutate(ctx, id, func(f *Fragment) { f.MakeImmutable() })
}

// MarkDeleted tombstones id for removal at t and detaches it: relations
// from other fragments of the view that point at id are dropped.
func (s *Store) MarkDeleted(ctx context.Context, id Identifier, t time.Time) error {
	if err := s.mutate(ctx, id, func(f *Fragment) { f.MarkDeleted(t) }); err != nil {
		return err
	}
	fs, err := s.ListByView(ctx, id.View)
	if err != nil {
		return err
	}
	for _, f := range fs {
		if !f.IsConnectedTo(id) {
			continue
		}
		if err := s.mutate(ctx, f.ID, func(f *Fragment) { f.RemoveRelationsTo(id) }); err != nil {
			return err
		}
	}
	return nil
}

// ListByView returns the fragments of view ordered by canonical key.
func (s *Store) ListByView(ctx context.Context, view ViewName) ([]*Fragment, error) {
	var out []*Fragment
	prefix := viewPrefix(view)
	err := s.db.ScanPrefix(prefix, func(k, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		// "f/v1" is also a prefix of "f/v10"
		if rest := k[len(prefix):]; len(rest) > 0 && rest[0] != '?' {
			return true, nil
		}
		f, err := decode(v)
		if err != nil {
			return false, err
		}
		out = append(out, f)
		return true, nil
	})
	return out, errors.Wrapf(err, "list fragments of %s", view)
}

// DeleteView removes every fragment of view.
func (s *Store) DeleteView(ctx context.Context, view ViewName) error {
	prefix := viewPrefix(view)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(prefix, nil); err != nil {
		return err
	}
	q := append(append([]byte(nil), prefix...), '?')
	if err := b.DeleteRange(q, pebblestore.PrefixEnd(q), nil); err != nil {
		return err
	}
	return errors.Wrapf(s.db.CommitBatch(ctx, b), "delete fragments of %s", view)
}

func (s *Store) mutate(ctx context.Context, id Identifier, fn func(*Fragment)) error {
	key := fragmentKey(id)
	err := s.db.Update(ctx, key, func(cur []byte, found bool, b *pebble.Batch) error {
		f := New(id)
		if found {
			var err error
			if f, err = decode(cur); err != nil {
				return err
			}
		}
		fn(f)
		raw, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return b.Set(key, raw, nil)
	})
	return errors.Wrapf(err, "update fragment %s", id)
}

func decode(raw []byte) (*Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode fragment")
	}
	return &f, nil
}
