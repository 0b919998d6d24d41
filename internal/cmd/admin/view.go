package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/pagination"
	"github.com/rzbill/ldes/internal/runtime"
	"github.com/rzbill/ldes/internal/view"
)

// NewViewCommand constructs the `view` command group.
func NewViewCommand(open OpenFunc) *cobra.Command {
	viewCmd := &cobra.Command{Use: "view", Short: "View operations"}
	viewCmd.AddCommand(
		newViewCreateCommand(open),
		newViewDeleteCommand(open),
		newViewListCommand(open),
	)
	return viewCmd
}

func newViewCreateCommand(open OpenFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a view (no-op when it exists)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := definitionFromFlags(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				stored, created, err := rt.CreateView(ctx, d)
				if err != nil {
					return err
				}
				if err := drain(ctx, rt); err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(cmd.ErrOrStderr(), "view %s already exists; keeping stored definition\n", stored.Name)
				}
				return printJSON(cmd, stored)
			})
		},
	}
	createCmd.Flags().String("name", "", "View name: [collection/]name")
	createCmd.Flags().String("file", "", "JSON view definition (overrides the other flags)")
	createCmd.Flags().String("fragmentation", "", "Fragmentation strategy (timebased); empty for none")
	createCmd.Flags().StringSlice("prop", nil, "Fragmentation property key=value (repeatable)")
	createCmd.Flags().Int("member-limit", 100, "Members per page")
	createCmd.Flags().Bool("bidirectional", true, "Link pages both ways")
	createCmd.Flags().String("filter", "", "CEL member filter over id, subject and properties")
	return createCmd
}

func definitionFromFlags(cmd *cobra.Command) (view.Definition, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return view.Definition{}, err
		}
		var d view.Definition
		if err := json.Unmarshal(raw, &d); err != nil {
			return view.Definition{}, fmt.Errorf("invalid view file: %w", err)
		}
		return d, nil
	}
	nameFlag, _ := cmd.Flags().GetString("name")
	name, err := fragment.ParseViewName(nameFlag)
	if err != nil {
		return view.Definition{}, fmt.Errorf("invalid --name: %w", err)
	}
	limit, _ := cmd.Flags().GetInt("member-limit")
	bidi, _ := cmd.Flags().GetBool("bidirectional")
	filter, _ := cmd.Flags().GetString("filter")
	d := view.Definition{
		Name:         name,
		MemberFilter: filter,
		Pagination: map[string]string{
			pagination.PropMemberLimit:            strconv.Itoa(limit),
			pagination.PropBidirectionalRelations: strconv.FormatBool(bidi),
		},
	}
	if strategy, _ := cmd.Flags().GetString("fragmentation"); strategy != "" {
		props := map[string]string{}
		kvs, _ := cmd.Flags().GetStringSlice("prop")
		for _, kv := range kvs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return view.Definition{}, fmt.Errorf("invalid --prop %q; expected key=value", kv)
			}
			props[k] = v
		}
		d.Fragmentations = []view.Fragmentation{{Name: strategy, Properties: props}}
	}
	return d, nil
}

func newViewDeleteCommand(open OpenFunc) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a view with its buckets, pages and fragments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nameFlag, _ := cmd.Flags().GetString("name")
			name, err := fragment.ParseViewName(nameFlag)
			if err != nil {
				return fmt.Errorf("invalid --name: %w", err)
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime.Runtime) error {
				if err := rt.DeleteView(ctx, name); err != nil {
					return err
				}
				if err := drain(ctx, rt); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
				return nil
			})
		},
	}
	deleteCmd.Flags().String("name", "", "View name: [collection/]name")
	return deleteCmd
}

func newViewListCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List views",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(_ context.Context, rt *runtime.Runtime) error {
				defs, err := rt.Views()
				if err != nil {
					return err
				}
				for _, d := range defs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tfragmentations=%d\tmemberLimit=%s\n",
						d.Name, len(d.Fragmentations), d.Pagination[pagination.PropMemberLimit])
				}
				return nil
			})
		},
	}
}
