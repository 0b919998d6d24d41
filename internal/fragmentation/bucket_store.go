package fragmentation

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// ErrBucketNotFound is returned by BucketStore.Get for unknown ids.
var ErrBucketNotFound = errors.New("bucket not found")

// StageFunc adds writes to the batch that inserts a bucket; inserted carries
// the assigned id.
type StageFunc func(batch *pebble.Batch, inserted Bucket) error

// BucketStore persists buckets. InsertIfAbsent is the only writer and must be
// a single atomic insert-if-absent keyed on (view, descriptor); writes staged
// by stage commit with the insert and only when it happens.
type BucketStore interface {
	Retrieve(ctx context.Context, view fragment.ViewName, d Descriptor) (Bucket, bool, error)
	InsertIfAbsent(ctx context.Context, b Bucket, stage StageFunc) (Bucket, bool, error)
	Get(ctx context.Context, view fragment.ViewName, id int64) (Bucket, error)
	ListByView(ctx context.Context, view fragment.ViewName) ([]Bucket, error)
	DeleteView(ctx context.Context, view fragment.ViewName) error
}

// PebbleBucketStore implements BucketStore on Pebble.
type PebbleBucketStore struct {
	db *pebblestore.DB
}

func NewPebbleBucketStore(db *pebblestore.DB) *PebbleBucketStore {
	return &PebbleBucketStore{db: db}
}

var _ BucketStore = (*PebbleBucketStore)(nil)

func (s *PebbleBucketStore) Retrieve(ctx context.Context, view fragment.ViewName, d Descriptor) (Bucket, bool, error) {
	raw, err := s.db.Get(bucketKey(view, d))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Bucket{}, false, nil
	}
	if err != nil {
		return Bucket{}, false, errors.Wrapf(err, "retrieve bucket %s/%s", view, d)
	}
	b, err := decodeBucket(raw)
	return b, err == nil, err
}

// InsertIfAbsent assigns a fresh id and stores b unless its descriptor is
// already taken, in which case the stored bucket is returned. Ids burnt by a
// losing racer are never reused.
func (s *PebbleBucketStore) InsertIfAbsent(ctx context.Context, b Bucket, stage StageFunc) (Bucket, bool, error) {
	id, err := s.db.Incr(ctx, bucketIDCounterKey, 1)
	if err != nil {
		return Bucket{}, false, errors.Wrap(err, "allocate bucket id")
	}
	b.ID = int64(id)
	raw, err := json.Marshal(b)
	if err != nil {
		return Bucket{}, false, err
	}
	stored, inserted, err := s.db.SetIfAbsent(ctx, bucketKey(b.View, b.Descriptor), raw, func(batch *pebble.Batch) error {
		if err := batch.Set(bucketIDKey(b.View, b.ID), []byte(b.Descriptor.String()), nil); err != nil {
			return err
		}
		if stage != nil {
			return stage(batch, b)
		}
		return nil
	})
	if err != nil {
		return Bucket{}, false, errors.Wrapf(err, "insert bucket %s/%s", b.View, b.Descriptor)
	}
	if inserted {
		return b, true, nil
	}
	existing, err := decodeBucket(stored)
	return existing, false, err
}

func (s *PebbleBucketStore) Get(ctx context.Context, view fragment.ViewName, id int64) (Bucket, error) {
	raw, err := s.db.Get(bucketIDKey(view, id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Bucket{}, errors.Wrapf(ErrBucketNotFound, "bucket %d of %s", id, view)
	}
	if err != nil {
		return Bucket{}, errors.Wrapf(err, "get bucket %d", id)
	}
	d, err := ParseDescriptor(string(raw))
	if err != nil {
		return Bucket{}, err
	}
	b, found, err := s.Retrieve(ctx, view, d)
	if err != nil {
		return Bucket{}, err
	}
	if !found {
		return Bucket{}, errors.Wrapf(ErrBucketNotFound, "bucket %d of %s", id, view)
	}
	return b, nil
}

func (s *PebbleBucketStore) ListByView(ctx context.Context, view fragment.ViewName) ([]Bucket, error) {
	var out []Bucket
	err := s.db.ScanPrefix(bucketDescriptorPrefix(view), func(_, v []byte) (bool, error) {
		b, err := decodeBucket(v)
		if err != nil {
			return false, err
		}
		out = append(out, b)
		return ctx.Err() == nil, ctx.Err()
	})
	return out, err
}

func (s *PebbleBucketStore) DeleteView(ctx context.Context, view fragment.ViewName) error {
	return errors.Wrapf(s.db.DeletePrefix(ctx, bucketViewPrefix(view)), "delete buckets of %s", view)
}

func decodeBucket(raw []byte) (Bucket, error) {
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bucket{}, errors.Wrap(err, "decode bucket")
	}
	return b, nil
}
