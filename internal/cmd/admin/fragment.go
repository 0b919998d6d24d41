package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/runtime"
)

// relationOut and fragmentOut render identifiers in their wire form.
type relationOut struct {
	Node      string `json:"node"`
	Kind      string `json:"kind"`
	Value     string `json:"value,omitempty"`
	ValueType string `json:"valueType,omitempty"`
	Path      string `json:"path,omitempty"`
}

type fragmentOut struct {
	ID           string        `json:"id"`
	Immutable    bool          `json:"immutable"`
	MembersAdded int           `json:"membersAdded"`
	NextUpdate   *time.Time    `json:"nextUpdate,omitempty"`
	Relations    []relationOut `json:"relations,omitempty"`
}

func toOut(f *fragment.Fragment) fragmentOut {
	out := fragmentOut{ID: f.ID.String(), Immutable: f.Immutable, MembersAdded: f.MembersAdded, NextUpdate: f.NextUpdate}
	for _, r := range f.Relations {
		out.Relations = append(out.Relations, relationOut{
			Node:      r.Node.String(),
			Kind:      string(r.Kind),
			Value:     r.Value,
			ValueType: r.ValueType,
			Path:      r.Path,
		})
	}
	return out
}

// NewFragmentCommand constructs the `fragment` command group.
func NewFragmentCommand(open OpenFunc) *cobra.Command {
	fragmentCmd := &cobra.Command{Use: "fragment", Short: "Fragment inspection"}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a fragment, e.g. /es/by-time?year=2023",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := fragment.Parse(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				if err := drain(ctx, rt); err != nil {
					return err
				}
				f, err := rt.Fragment(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, toOut(f))
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the fragments of a view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nameFlag, _ := cmd.Flags().GetString("view")
			name, err := fragment.ParseViewName(nameFlag)
			if err != nil {
				return fmt.Errorf("invalid --view: %w", err)
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				if err := drain(ctx, rt); err != nil {
					return err
				}
				fs, err := rt.Fragments(ctx, name)
				if err != nil {
					return err
				}
				for _, f := range fs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tmembers=%d\trelations=%d\timmutable=%t\n",
						f.ID, f.MembersAdded, len(f.Relations), f.Immutable)
				}
				return nil
			})
		},
	}
	listCmd.Flags().String("view", "", "View name: [collection/]name")

	fragmentCmd.AddCommand(getCmd, listCmd)
	return fragmentCmd
}

// NewSealCommand constructs the `seal` command.
func NewSealCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Mark fragments of elapsed time windows immutable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				if err := drain(ctx, rt); err != nil {
					return err
				}
				n, err := rt.Seal(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sealed=%d\n", n)
				return nil
			})
		},
	}
}
