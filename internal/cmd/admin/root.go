// Package admin contains the Cobra commands that operate on a local ldes
// data directory: view management, member ingestion and fragment inspection.
package admin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	serverrun "github.com/rzbill/ldes/internal/cmd/server"
	cfgpkg "github.com/rzbill/ldes/internal/config"
	"github.com/rzbill/ldes/internal/runtime"
)

// OpenFunc opens the runtime a command works against.
type OpenFunc func(cmd *cobra.Command) (*runtime.Runtime, error)

// LocalOpener opens the runtime of the data directory named by the
// persistent --config and --data-dir flags.
func LocalOpener() OpenFunc {
	return func(cmd *cobra.Command) (*runtime.Runtime, error) {
		path, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		cfg, err := serverrun.LoadConfig(path, func(c *cfgpkg.Config) {
			if dataDir != "" {
				c.DataDir = dataDir
			}
		})
		if err != nil {
			return nil, err
		}
		cfg.DataDir = serverrun.StoreDir(cfg.DataDir)
		return runtime.Open(runtime.Options{Config: cfg})
	}
}

// AddCommands registers the view, ingest, fragment and seal command groups.
func AddCommands(root *cobra.Command, open OpenFunc) {
	root.AddCommand(
		NewViewCommand(open),
		NewIngestCommand(open),
		NewFragmentCommand(open),
		NewSealCommand(open),
	)
}

// withRuntime opens the runtime, runs fn and closes it.
func withRuntime(cmd *cobra.Command, open OpenFunc, fn func(ctx context.Context, rt *runtime.Runtime) error) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, rt)
}

// drain waits for event consumers, bounded so a stuck handler cannot hang
// the command.
func drain(ctx context.Context, rt *runtime.Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return rt.Drain(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
