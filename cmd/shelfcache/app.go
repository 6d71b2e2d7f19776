package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/codec"
	"github.com/unkn0wn-root/shelfcache/genstore"
	asynchook "github.com/unkn0wn-root/shelfcache/hooks/async"
	"github.com/unkn0wn-root/shelfcache/health"
	"github.com/unkn0wn-root/shelfcache/internal/catalogdb"
	"github.com/unkn0wn-root/shelfcache/invalidation"
	"github.com/unkn0wn-root/shelfcache/promhooks"
	rp "github.com/unkn0wn-root/shelfcache/provider/redis"
	"github.com/unkn0wn-root/shelfcache/ranking"
	"github.com/unkn0wn-root/shelfcache/sloghooks"
)

var errNoDatabase = errors.New("database_url (DATABASE_URL) is required for ranking refreshes")

// app is the wired process: one redis connection, one store, and the
// components built on it.
type app struct {
	registry    *prometheus.Registry
	metrics     *promhooks.Metrics
	hooks       *asynchook.Hooks
	monitor     *health.Monitor
	store       shelfcache.Store
	rankings    *shelfcache.Cache[[]ranking.BookSummary]
	invalidator *invalidation.Coordinator
	scheduler   *ranking.Scheduler // nil without a database
	db          *pgxpool.Pool
}

func openApp(ctx context.Context, c *cli, needDB bool) (*app, error) {
	cfg := c.cfg
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = promhooks.New(a.registry)

	var hooks shelfcache.Hooks = a.metrics
	if c.slog != nil {
		hooks = shelfcache.MultiHooks{a.metrics, sloghooks.New(c.slog, sloghooks.Options{SelfHealEvery: 10, StaleSkipEvery: 10})}
	}
	a.hooks = asynchook.New(hooks, 1, 1024)

	mon, err := health.Connect(ctx, health.Config{
		URL:                  cfg.RedisURL,
		MaxConnectAttempts:   cfg.MaxConnectAttempts,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ProbeInterval:        cfg.ProbeInterval,
		Logger:               c.log,
		OnStateChange:        a.metrics.ConnStateChanged,
	})
	if err != nil {
		a.hooks.Close()
		return nil, err
	}
	a.monitor = mon

	provider, err := rp.New(rp.Config{Client: mon.Client(), NamespaceIndex: cfg.NamespaceIndex})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	store, err := shelfcache.New(shelfcache.Options{
		Provider:     provider,
		Logger:       c.log,
		Hooks:        a.hooks,
		Quotas:       cfg.Quotas,
		OpTimeout:    cfg.OpTimeout,
		NamespaceTTL: map[string]time.Duration{shelfcache.NSTrending: cfg.TrendingTTL},
		GenStore:     genstore.NewRedis(mon.Client(), genstore.RedisOptions{}),
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.store = store

	rc, err := codec.Named[[]ranking.BookSummary](cfg.Codec)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if a.rankings, err = shelfcache.NewCache(shelfcache.CacheOptions[[]ranking.BookSummary]{
		Store:  store,
		Codec:  rc,
		Logger: c.log,
	}); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.invalidator = invalidation.New(store, invalidation.Options{Logger: c.log})

	if cfg.DatabaseURL == "" {
		if needDB {
			_ = a.Close(ctx)
			return nil, errNoDatabase
		}
		return a, nil
	}
	if a.db, err = catalogdb.Connect(ctx, cfg.DatabaseURL); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if a.scheduler, err = ranking.New(ranking.Options{
		Cache:    a.rankings,
		Source:   catalogdb.New(a.db),
		Interval: cfg.RefreshInterval,
		Logger:   c.log,
		Observer: a.metrics,
	}); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close tears down in reverse order of construction.
func (a *app) Close(ctx context.Context) error {
	var errs *multierror.Error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.store != nil {
		// the provider does not own the client; the monitor closes it
		if err := a.store.Close(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.monitor != nil {
		if err := a.monitor.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	a.hooks.Close()
	return errs.ErrorOrNil()
}
