package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/config"
	lrs "github.com/unkn0wn-root/shelfcache/log/logrus"
	sl "github.com/unkn0wn-root/shelfcache/log/slog"
	zl "github.com/unkn0wn-root/shelfcache/log/zap"
)

// cli carries state shared by every subcommand, filled in PersistentPreRunE.
type cli struct {
	configPath string
	loggerKind string

	cfg  *config.Config
	log  shelfcache.Logger
	slog *slog.Logger // nil unless loggerKind == "slog"
	sync func()
	out  io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout, sync: func() {}}

	root := &cobra.Command{
		Use:           "shelfcache",
		Short:         "Book catalog cache: ranking precompute, invalidation and redis health",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.out = cmd.OutOrStdout()
			return c.setupLogger()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.sync()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default ./shelfcache.yaml if present)")
	root.PersistentFlags().StringVar(&c.loggerKind, "logger", "slog", "log backend: slog, zap or logrus")

	root.AddCommand(
		newServeCmd(c),
		newStatusCmd(c),
		newRefreshCmd(c),
		newInvalidateCmd(c),
	)
	return root
}

func (c *cli) setupLogger() error {
	level := strings.ToLower(c.cfg.LogLevel)
	switch c.loggerKind {
	case "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		c.slog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
		c.log = sl.New(c.slog)
	case "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		l, err := zc.Build()
		if err != nil {
			return fmt.Errorf("zap: %w", err)
		}
		c.log = zl.New(l)
		c.sync = func() { _ = l.Sync() }
	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(lvl)
		c.log = lrs.New(l)
	default:
		return fmt.Errorf("unknown --logger %q", c.loggerKind)
	}
	return nil
}
