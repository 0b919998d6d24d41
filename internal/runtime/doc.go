// Package runtime wires storage, the event bus, fragmentation, pagination
// and the fragment projection into a single-node ldes instance.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Background: true})
//	defer rt.Close()
//	_, _, _ = rt.CreateView(ctx, view.Definition{
//	    Name:           fragment.ViewName{Collection: "es", Name: "by-time"},
//	    Fragmentations: []view.Fragmentation{{Name: "timebased", Properties: map[string]string{"fragmentationPath": "ts"}}},
//	    Pagination:     map[string]string{"memberLimit": "100"},
//	})
//	_, _ = rt.Ingest(ctx, name, members)
package runtime
