package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/ldes/internal/config"
	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/view"
	"github.com/rzbill/ldes/pkg/log"
)

var esView = fragment.ViewName{Collection: "es", Name: "by-time"}

func openRuntime(t *testing.T, dir string, views ...cfgpkg.ViewConfig) *Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = dir
	cfg.Fsync = "never"
	cfg.Views = views
	rt, err := Open(Options{
		Config: cfg,
		Logger: log.NewNopLogger(),
		Bus:    events.BusOptions{PollInterval: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	return rt
}

func timeView() view.Definition {
	return view.Definition{
		Name: esView,
		Fragmentations: []view.Fragmentation{{
			Name:       "timebased",
			Properties: map[string]string{"fragmentationPath": "ts", "maxGranularity": "day"},
		}},
		Pagination: map[string]string{"memberLimit": "2"},
	}
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openRuntime(t, t.TempDir())
	defer rt.Close()
	assert.NoError(t, rt.CheckHealth(context.Background()))
}

func TestCreateViewRejectsBadDefinitions(t *testing.T) {
	rt := openRuntime(t, t.TempDir())
	defer rt.Close()
	ctx := context.Background()

	bad := timeView()
	bad.Fragmentations[0].Name = "geospatial"
	_, _, err := rt.CreateView(ctx, bad)
	assert.Error(t, err)

	bad = timeView()
	bad.Pagination = nil
	_, _, err = rt.CreateView(ctx, bad)
	assert.Error(t, err)

	views, err := rt.Views()
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestIngestPaginateAndProject(t *testing.T) {
	rt := openRuntime(t, t.TempDir())
	defer rt.Close()
	ctx := context.Background()

	_, created, err := rt.CreateView(ctx, timeView())
	require.NoError(t, err)
	require.True(t, created)

	var members []fragmentation.Member
	for _, id := range []string{"a", "b", "c"} {
		members = append(members, fragmentation.Member{ID: id, Subject: "urn:" + id, Properties: map[string]any{"ts": "2023-06-15T10:00:00Z"}})
	}
	res, err := rt.Ingest(ctx, esView, members)
	require.NoError(t, err)
	assert.Len(t, res.Members, 3)
	assert.True(t, res.NewView)

	require.Eventually(t, func() bool {
		return rt.Paginate(ctx, esView) == nil
	}, 5*time.Second, 10*time.Millisecond)

	day := fragment.NewIdentifier(esView,
		fragment.Pair{Key: "year", Value: "2023"},
		fragment.Pair{Key: "month", Value: "06"},
		fragment.Pair{Key: "day", Value: "15"})
	page1, err := day.CreateChild(fragment.Pair{Key: "pageNumber", Value: "1"})
	require.NoError(t, err)
	page2, err := day.CreateChild(fragment.Pair{Key: "pageNumber", Value: "2"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		d, err := rt.Fragment(ctx, day)
		if err != nil || !d.IsConnectedTo(page1) || d.IsConnectedTo(page2) {
			return false
		}
		p1, err := rt.Fragment(ctx, page1)
		if err != nil || !p1.IsConnectedTo(page2) {
			return false
		}
		p2, err := rt.Fragment(ctx, page2)
		return err == nil && p2.MembersAdded == 1 && p2.IsConnectedTo(page1)
	}, 5*time.Second, 10*time.Millisecond)

	root, err := rt.Fragment(ctx, fragment.Root(esView))
	require.NoError(t, err)
	assert.Len(t, root.Relations, 2, "GTE and LT to the year bucket")
}

func TestDeleteViewClearsEverything(t *testing.T) {
	rt := openRuntime(t, t.TempDir())
	defer rt.Close()
	ctx := context.Background()

	_, _, err := rt.CreateView(ctx, timeView())
	require.NoError(t, err)
	_, err = rt.Ingest(ctx, esView, []fragmentation.Member{{ID: "a", Properties: map[string]any{"ts": "2023-06-15T10:00:00Z"}}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rt.Paginate(ctx, esView) == nil
	}, 5*time.Second, 10*time.Millisecond)
	page1 := fragment.NewIdentifier(esView,
		fragment.Pair{Key: "year", Value: "2023"},
		fragment.Pair{Key: "month", Value: "06"},
		fragment.Pair{Key: "day", Value: "15"},
		fragment.Pair{Key: "pageNumber", Value: "1"})
	day, _ := page1.Parent()
	require.Eventually(t, func() bool {
		f, err := rt.Fragment(ctx, day)
		return err == nil && f.IsConnectedTo(page1)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.DeleteView(ctx, esView))
	assert.ErrorIs(t, rt.DeleteView(ctx, esView), view.ErrNotFound)

	assert.Eventually(t, func() bool {
		fs, err := rt.Fragments(ctx, esView)
		return err == nil && len(fs) == 0
	}, 5*time.Second, 10*time.Millisecond)
	_, err = rt.Ingest(ctx, esView, []fragmentation.Member{{ID: "b"}})
	assert.ErrorIs(t, err, fragmentation.ErrUnknownView)
}

func TestConfiguredViewsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	vc := cfgpkg.ViewConfig{
		Name:           "es/by-time",
		Fragmentations: []cfgpkg.FragmentationConfig{{Name: "timebased", Properties: map[string]string{"fragmentationPath": "ts", "maxGranularity": "day"}}},
		Pagination:     map[string]string{"memberLimit": "10"},
	}
	rt := openRuntime(t, dir, vc)
	views, err := rt.Views()
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NoError(t, rt.Close())

	rt = openRuntime(t, dir)
	defer rt.Close()
	views, err = rt.Views()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, esView, views[0].Name)

	_, err = rt.Ingest(context.Background(), esView, []fragmentation.Member{{ID: "x", Properties: map[string]any{"ts": "2024-01-01T00:00:00Z"}}})
	assert.NoError(t, err)
	assert.NoError(t, rt.Paginate(context.Background(), esView))
}
