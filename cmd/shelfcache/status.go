package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/ranking"
)

const commandTimeout = 30 * time.Second

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show redis health and cached key counts per namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return runStatus(ctx, c)
		},
	}
}

func runStatus(ctx context.Context, c *cli) error {
	a, err := openApp(ctx, c, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	probe, err := a.monitor.Probe(ctx)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "redis state\t%s\n", a.monitor.State())
	fmt.Fprintf(w, "latency\t%s\n", probe.Latency)
	fmt.Fprintf(w, "keys\t%d\n", probe.Keys)
	if probe.UsedMemory != "" {
		fmt.Fprintf(w, "used memory\t%s\n", probe.UsedMemory)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "NAMESPACE\tKEYS\tQUOTA")
	for _, ns := range statusNamespaces(c.cfg.Quotas) {
		n, err := a.store.Count(ctx, ns+":*")
		if err != nil {
			return fmt.Errorf("count %s: %w", ns, err)
		}
		quota := "-"
		if q, ok := c.cfg.Quotas[ns]; ok && q > 0 {
			quota = fmt.Sprint(q)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", ns, n, quota)
	}
	return w.Flush()
}

// statusNamespaces lists rankings first, then the quota namespaces sorted,
// then trending.
func statusNamespaces(quotas map[string]int) []string {
	out := []string{ranking.Namespace}
	for _, ns := range slices.Sorted(maps.Keys(quotas)) {
		if ns != ranking.Namespace && ns != shelfcache.NSTrending {
			out = append(out, ns)
		}
	}
	return append(out, shelfcache.NSTrending)
}
