package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/runtime"
)

// NewIngestCommand constructs the `ingest` command: members are read as
// JSON lines ({"id", "subject", "properties"}) and bucketised in batches.
func NewIngestCommand(open OpenFunc) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Bucketise JSON-lines members into a view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nameFlag, _ := cmd.Flags().GetString("view")
			file, _ := cmd.Flags().GetString("file")
			batch, _ := cmd.Flags().GetInt("batch")
			paginate, _ := cmd.Flags().GetBool("paginate")
			name, err := fragment.ParseViewName(nameFlag)
			if err != nil {
				return fmt.Errorf("invalid --view: %w", err)
			}
			if batch <= 0 {
				return fmt.Errorf("--batch must be positive")
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				total, filtered := 0, 0
				err := readMembers(in, batch, func(ms []fragmentation.Member) error {
					res, err := rt.Ingest(ctx, name, ms)
					if err != nil {
						return err
					}
					total += len(res.Members)
					filtered += res.Filtered
					return nil
				})
				if err != nil {
					return err
				}
				if paginate {
					if err := drain(ctx, rt); err != nil {
						return err
					}
					if err := rt.Paginate(ctx, name); err != nil {
						return err
					}
				}
				if err := drain(ctx, rt); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bucketised=%d filtered=%d\n", total, filtered)
				return nil
			})
		},
	}
	ingestCmd.Flags().String("view", "", "View name: [collection/]name")
	ingestCmd.Flags().String("file", "-", "JSON-lines file, - for stdin")
	ingestCmd.Flags().Int("batch", 500, "Members per bucketisation call")
	ingestCmd.Flags().Bool("paginate", true, "Paginate the view before exiting")
	return ingestCmd
}

func readMembers(r io.Reader, batch int, fn func([]fragmentation.Member) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	var pending []fragmentation.Member
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var m fragmentation.Member
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if m.ID == "" {
			return fmt.Errorf("line %d: member id is required", line)
		}
		pending = append(pending, m)
		if len(pending) == batch {
			if err := fn(pending); err != nil {
				return err
			}
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(pending) > 0 {
		return fn(pending)
	}
	return nil
}
