package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/shelfcache/ranking"
)

func newRefreshCmd(c *cli) *cobra.Command {
	var d ranking.Descriptor
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute ranking pages now",
		Long: `Without --sort every scheduled ranking page is recomputed once.
With --sort only the page described by the flags is recomputed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if d.Sort == "" {
				return runRefreshAll(ctx, c)
			}
			return runRefreshOne(ctx, c, d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&d.Sort, "sort", "", "rating, popular, recent or title")
	f.StringVar(&d.Genre, "genre", "", "genre filter")
	f.IntVar(&d.Year, "year", 0, "publication year filter")
	f.IntVar(&d.Decade, "decade", 0, "publication decade filter, e.g. 1990")
	f.IntVar(&d.Page, "page", 1, "1-based page")
	f.IntVar(&d.Limit, "limit", 20, "page size, 1..100")
	return cmd
}

func runRefreshAll(ctx context.Context, c *cli) error {
	a, err := openApp(ctx, c, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	res := a.scheduler.RefreshAll(ctx)
	fmt.Fprintf(c.out, "refreshed %d/%d ranking pages in %s\n", res.Succeeded, res.Total, res.Duration)
	if res.Failed > 0 {
		return fmt.Errorf("%d ranking pages failed; see log", res.Failed)
	}
	return nil
}

func runRefreshOne(ctx context.Context, c *cli, d ranking.Descriptor) error {
	a, err := openApp(ctx, c, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	if err := a.scheduler.ForceRefresh(ctx, d); err != nil {
		return fmt.Errorf("refresh %s: %w", d, err)
	}
	fmt.Fprintln(c.out, ranking.Key(d))
	return nil
}
