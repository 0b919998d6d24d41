package timebased

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/events/eventstest"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
	"github.com/rzbill/ldes/pkg/log"
)

var v1 = fragment.ViewName{Name: "v1"}

type fixture struct {
	db       *pebblestore.DB
	store    *fragmentation.PebbleBucketStore
	rec      *eventstest.Recorder
	outbox   *events.Outbox
	metrics  *metrics.Metrics
	strategy *Strategy
	root     fragmentation.Bucket
}

func newFixture(t *testing.T, props map[string]string) *fixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db, store: fragmentation.NewPebbleBucketStore(db), rec: &eventstest.Recorder{}, metrics: metrics.New()}
	f.outbox = events.NewOutbox(db, f.rec)
	f.strategy, err = Build(props, fragmentation.Leaf{}, f.store, f.outbox, f.metrics, log.NewNopLogger())
	require.NoError(t, err)
	f.root, _, err = f.store.InsertIfAbsent(context.Background(), fragmentation.RootBucket(v1), nil)
	require.NoError(t, err)
	return f
}

func member(id, subject, ts string) fragmentation.Member {
	return fragmentation.Member{ID: id, Subject: subject, Properties: map[string]any{"ts": ts}}
}

func relationsOf(rec *eventstest.Recorder) []events.BucketRelationCreated {
	var out []events.BucketRelationCreated
	for _, ev := range rec.OfKind(events.KindBucketRelationCreated) {
		out = append(out, ev.(events.BucketRelationCreated))
	}
	return out
}

func TestMonthScenario(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "MONTH"})
	ctx := context.Background()

	leaves, err := f.strategy.AddMemberToBucket(ctx, f.root, member("m1", "s", "2023-06-15T10:00:00"))
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, "/v1?year=2023&month=06", leaves[0].FragmentID().String())

	rels := relationsOf(f.rec)
	require.Len(t, rels, 4)
	type row struct {
		from, to string
		kind     fragment.RelationKind
		value    string
	}
	var got []row
	for _, r := range rels {
		got = append(got, row{r.From.String(), r.Relation.Node.String(), r.Relation.Kind, r.Relation.Value})
		assert.Equal(t, "ts", r.Relation.Path)
		assert.Equal(t, fragment.DateTimeType, r.Relation.ValueType)
	}
	assert.Equal(t, []row{
		{"/v1", "/v1?year=2023", fragment.GreaterThanOrEqual, "2023-01-01T00:00:00"},
		{"/v1", "/v1?year=2023", fragment.LessThan, "2024-01-01T00:00:00"},
		{"/v1?year=2023", "/v1?year=2023&month=06", fragment.GreaterThanOrEqual, "2023-06-01T00:00:00"},
		{"/v1?year=2023", "/v1?year=2023&month=06", fragment.LessThan, "2023-07-01T00:00:00"},
	}, got)
	assert.Empty(t, f.rec.OfKind(events.KindLinearCachingTriggered))

	// a second member in the same month creates nothing
	f.rec.Reset()
	again, err := f.strategy.AddMemberToBucket(ctx, f.root, member("m2", "s", "2023-06-30T23:59:59Z"))
	require.NoError(t, err)
	assert.Equal(t, leaves[0].ID, again[0].ID)
	assert.Empty(t, f.rec.Events())
}

func TestDepthBoundForDay(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "day"})
	ctx := context.Background()

	leaves, err := f.strategy.AddMemberToBucket(ctx, f.root, member("m1", "s", "2023-06-15T10:11:12Z"))
	require.NoError(t, err)
	assert.Len(t, leaves[0].Descriptor, 3)

	all, err := f.store.ListByView(ctx, v1)
	require.NoError(t, err)
	assert.Len(t, all, 4, "root, year, month and day")
	for _, b := range all {
		_, hasHour := b.ValueOf("hour")
		assert.False(t, hasHour)
	}
}

func TestDefaultRouting(t *testing.T) {
	f := newFixture(t, map[string]string{
		PropFragmentationPath: "ts",
		PropMaxGranularity:    "second",
		PropSubjectFilter:     "https://example.org/.*",
		PropLinearTimeCaching: "true",
	})
	ctx := context.Background()

	for i, m := range []fragmentation.Member{
		member("a", "https://other.org/1", "2023-06-15T10:00:00Z"),
		member("b", "https://other.org/2", "1999-01-01T00:00:00Z"),
		{ID: "c", Subject: "https://example.org/3"},
		member("d", "https://example.org/4", "not a time"),
	} {
		leaves, err := f.strategy.AddMemberToBucket(ctx, f.root, m)
		require.NoError(t, err)
		require.Len(t, leaves, 1)
		assert.Equal(t, "/v1?year=unknown", leaves[0].FragmentID().String(), "member %d", i)
		assert.True(t, IsDefaultBucket(leaves[0]))
	}

	all, err := f.store.ListByView(ctx, v1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rels := relationsOf(f.rec)
	require.Len(t, rels, 1)
	assert.Equal(t, fragment.Generic, rels[0].Relation.Kind)
	assert.Empty(t, rels[0].Relation.Value)
	assert.Empty(t, f.rec.OfKind(events.KindLinearCachingTriggered), "default relations never trigger caching")
}

func TestLinearCachingTriggers(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "year", PropLinearTimeCaching: "true"})
	_, err := f.strategy.AddMemberToBucket(context.Background(), f.root, member("m1", "s", "2023-06-15T10:00:00Z"))
	require.NoError(t, err)

	evs := f.rec.Events()
	require.Len(t, evs, 4)
	kinds := []events.Kind{evs[0].Kind(), evs[1].Kind(), evs[2].Kind(), evs[3].Kind()}
	assert.Equal(t, []events.Kind{
		events.KindLinearCachingTriggered, events.KindBucketRelationCreated,
		events.KindLinearCachingTriggered, events.KindBucketRelationCreated,
	}, kinds)
	trigger := evs[0].(events.LinearCachingTriggered)
	assert.Equal(t, f.root.ID, trigger.BucketID)
	assert.Equal(t, "2024-01-01T00:00:00", FormatDateTime(trigger.NextUpdate))
}

func TestConcurrentCreateIsIdempotent(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "year"})
	creator := NewBucketCreator(f.store, NewRelationsAttributer(f.outbox, Config{FragmentationPath: "ts"}), f.metrics, log.NewNopLogger())
	ctx := context.Background()

	const n = 24
	got := make([]fragmentation.Bucket, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			b, err := creator.GetOrCreateBucket(ctx, f.root, "2023", Year)
			assert.NoError(t, err)
			got[i] = b
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range got {
		assert.Equal(t, got[0], got[i])
	}
	all, err := f.store.ListByView(ctx, v1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, relationsOf(f.rec), 2, "only the inserting caller attributes relations")
}

func TestSentinelYearIsAlwaysDefault(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "year"})
	creator := NewBucketCreator(f.store, NewRelationsAttributer(f.outbox, Config{FragmentationPath: "ts"}), nil, log.NewNopLogger())

	// Detection looks only at the year value, so a year bucket literally
	// valued "unknown" is treated as the default bucket.
	b, err := creator.GetOrCreateBucket(context.Background(), f.root, DefaultBucketValue, Year)
	require.NoError(t, err)
	assert.True(t, IsDefaultBucket(b))
	rels := relationsOf(f.rec)
	require.Len(t, rels, 1)
	assert.Equal(t, fragment.Generic, rels[0].Relation.Kind)

	nested := fragmentation.Bucket{View: v1, Descriptor: fragmentation.Descriptor{{Key: "year", Value: "unknown"}, {Key: "month", Value: "06"}}}
	assert.True(t, IsDefaultBucket(nested))
	assert.False(t, IsDefaultBucket(fragmentation.Bucket{View: v1, Descriptor: fragmentation.Descriptor{{Key: "month", Value: "unknown"}}}))
}

type failingStore struct {
	fragmentation.BucketStore
	err error
}

func (s failingStore) Retrieve(context.Context, fragment.ViewName, fragmentation.Descriptor) (fragmentation.Bucket, bool, error) {
	return fragmentation.Bucket{}, false, s.err
}

func TestStorageErrorsPropagate(t *testing.T) {
	boom := errors.New("disk on fire")
	rec := &eventstest.Recorder{}
	creator := NewBucketCreator(failingStore{err: boom}, NewRelationsAttributer(events.NewOutbox(nil, rec), Config{}), nil, log.NewNopLogger())
	_, err := creator.GetOrCreateBucket(context.Background(), fragmentation.Bucket{ID: 1, View: v1}, "2023", Year)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.Events())
}

func TestRelationsSurviveFailedPublish(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "year"})
	creator := NewBucketCreator(f.store, NewRelationsAttributer(f.outbox, Config{FragmentationPath: "ts"}), f.metrics, log.NewNopLogger())
	ctx := context.Background()

	f.rec.Err = errors.New("event log write failed")
	_, err := creator.GetOrCreateBucket(ctx, f.root, "2023", Year)
	require.Error(t, err)
	assert.Empty(t, f.rec.Events())

	f.rec.Err = nil
	year, err := creator.GetOrCreateBucket(ctx, f.root, "2023", Year)
	require.NoError(t, err)
	assert.Equal(t, "/v1?year=2023", year.FragmentID().String())

	rels := relationsOf(f.rec)
	require.Len(t, rels, 2)
	assert.Equal(t, fragment.GreaterThanOrEqual, rels[0].Relation.Kind)
	assert.Equal(t, "2023-01-01T00:00:00", rels[0].Relation.Value)
	assert.Equal(t, fragment.LessThan, rels[1].Relation.Kind)
	assert.Equal(t, "2024-01-01T00:00:00", rels[1].Relation.Value)
	assert.Equal(t, f.root.FragmentID(), rels[0].From)

	_, err = creator.GetOrCreateBucket(ctx, f.root, "2023", Year)
	require.NoError(t, err)
	assert.Len(t, relationsOf(f.rec), 2)
}

func TestSealerSealsElapsedWindows(t *testing.T) {
	f := newFixture(t, map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "month"})
	ctx := context.Background()
	for _, m := range []fragmentation.Member{
		member("old", "s", "2023-06-15T10:00:00Z"),
		member("new", "s", "2024-03-02T10:00:00Z"),
	} {
		_, err := f.strategy.AddMemberToBucket(ctx, f.root, m)
		require.NoError(t, err)
	}
	_, err := NewBucketCreator(f.store, NewRelationsAttributer(f.outbox, Config{}), nil, log.NewNopLogger()).
		GetOrCreateBucket(ctx, f.root, DefaultBucketValue, Year)
	require.NoError(t, err)

	frags := fragment.NewStore(f.db)
	sealer := NewSealer(f.store, frags, log.NewNopLogger())
	sealer.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }

	n, err := sealer.SealElapsed(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]bool{
		"/v1?year=2023":          true,
		"/v1?year=2023&month=06": true,
	} {
		parsed, err := fragment.Parse(id)
		require.NoError(t, err)
		got, err := frags.Retrieve(ctx, parsed)
		require.NoError(t, err)
		assert.Equal(t, want, got.Immutable, id)
	}
	for _, id := range []string{"/v1?year=2024", "/v1?year=2024&month=03", "/v1?year=unknown", "/v1"} {
		parsed, _ := fragment.Parse(id)
		_, err := frags.Retrieve(ctx, parsed)
		assert.ErrorIs(t, err, fragment.ErrNotFound, id)
	}

	n, err = sealer.SealElapsed(ctx, v1)
	require.NoError(t, err)
	assert.Zero(t, n)
}
