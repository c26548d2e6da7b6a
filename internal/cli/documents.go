package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/relval"
	"github.com/jacentio/relval/store"
)

const collectionsHelp = "campaigns, subcampaigns, tickets or requests"

func (a *app) controller(collection string) (*controller.Controller, error) {
	c, ok := a.sys.Controller(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s (expected %s)", store.ErrUnknownCollection, collection, collectionsHelp)
	}
	return c, nil
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <collection> [file]",
		Short: "Create a document from a JSON file or stdin",
		Long: `Create a document in ` + collectionsHelp + `.

Tickets and requests receive a generated prepid; other collections take
it from the document.`,
		Example: `  relval create campaigns campaign.json
  echo '{"subcampaign":"Run3_GEN","input_datasets":["/A/B/RAW"]}' | relval create tickets`,
		Args: cobra.RangeArgs(1, 2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			input, err := readObject(cmd, args[1:])
			if err != nil {
				return err
			}
			var out model.Object
			switch args[0] {
			case relval.CollectionTickets:
				out, err = a.sys.Tickets.Create(ctx, input)
			case relval.CollectionRequests:
				out, err = a.sys.Requests.Create(ctx, input)
			default:
				c, cerr := a.controller(args[0])
				if cerr != nil {
					return cerr
				}
				out, err = c.Create(ctx, input)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd, out)
		}),
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			out, ok, err := c.Get(ctx, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s %s", controller.ErrNotFound, args[0], args[1])
			}
			return writeJSON(cmd, out)
		}),
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> [file]",
		Short: "Replace a document with a JSON file or stdin",
		Long: `Replace a stored document. The input must carry the prepid and should
carry the _rev it was read at; a stale _rev is rejected.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			input, err := readObject(cmd, args[1:])
			if err != nil {
				return err
			}
			out, err := c.Update(ctx, input)
			if err != nil {
				return err
			}
			return writeJSON(cmd, out)
		}),
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			if err := c.Delete(ctx, args[1]); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"deleted": args[1]})
		}),
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		q    store.Query
		desc bool
	)
	cmd := &cobra.Command{
		Use:   "query <collection>",
		Short: "Search a collection",
		Long: `Search a collection with a filter of clauses joined by "&&".

Each clause is attribute=value. The value may start with "!" to negate,
"<" or ">" to compare, and may use "*" as a wildcard.`,
		Example: `  relval query requests --filter 'status=approved&&dataset=/RelVal*' --sort priority --desc`,
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			if desc {
				asc := false
				q.Ascending = &asc
			}
			results, total, err := c.Query(ctx, q)
			if err != nil {
				return err
			}
			if results == nil {
				results = []model.Object{}
			}
			return writeJSON(cmd, map[string]any{"results": results, "total_rows": total})
		}),
	}
	cmd.Flags().StringVar(&q.Filter, "filter", "", "Filter expression")
	cmd.Flags().IntVar(&q.Page, "page", 0, "Zero-based page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Page size (0 uses the configured default)")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "Attribute to sort by")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().BoolVar(&q.IgnoreCase, "ignore-case", false, "Case-insensitive string matching")
	return cmd
}
