package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/shelfcache/invalidation"
)

func newInvalidateCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete cached entries affected by a user, book or global change",
	}
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print the patterns without deleting")

	scoped := func(use, short string, scope invalidation.Scope) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInvalidate(cmd.Context(), c, scope, args[0], dryRun)
			},
		}
	}
	cmd.AddCommand(
		scoped("user", "Invalidate entries derived from one user", invalidation.ScopeUser),
		scoped("book", "Invalidate one book plus rankings and search results", invalidation.ScopeBook),
		&cobra.Command{
			Use:   "global",
			Short: "Invalidate trending, rankings, search and recent activity",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runInvalidate(cmd.Context(), c, invalidation.ScopeGlobal, "", dryRun)
			},
		},
	)
	return cmd
}

func runInvalidate(ctx context.Context, c *cli, scope invalidation.Scope, id string, dryRun bool) error {
	if dryRun {
		patterns, err := invalidation.New(nil, invalidation.Options{}).Patterns(scope, id)
		if err != nil {
			return err
		}
		for _, p := range patterns {
			fmt.Fprintln(c.out, p)
		}
		return nil
	}

	a, err := openApp(ctx, c, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	n, err := a.invalidator.Invalidate(ctx, scope, id)
	fmt.Fprintf(c.out, "deleted %d keys\n", n)
	return err
}
