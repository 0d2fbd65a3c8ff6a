package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/metrics"
	"github.com/exploopio/sbomkit/pkg/store"
)

const appName = "sbomkit"

// =============================================================================
// Global Flags
// =============================================================================

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Generate SPDX documents for source packages",
	Long: `sbomkit registers directories and archives as packages, runs license
scanners over their files and produces SPDX documents from the findings.

Every file and package is stored once by content. A scanner runs at most
once on a given file unless --rescan is set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", config.DefaultPath(), "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return rootCmd.ExecuteContext(ctx)
}

// =============================================================================
// Shared setup
// =============================================================================

// loadConfig reads the configuration file and installs the default logger.
func loadConfig() (*config.Config, core.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, err := core.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, errors.E(errors.KindInvalidInput, "sbomkit.loadConfig", err)
	}
	if verbose {
		level = core.LogLevelDebug
	}
	logger := core.NewDefaultLogger(appName, level)
	core.SetDefaultLogger(logger)
	return cfg, logger, nil
}

// app bundles what every database command needs.
type app struct {
	cfg     *config.Config
	logger  core.Logger
	metrics *metrics.PrometheusCollector
	store   *store.Store
}

func openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	collector, err := metrics.NewPrometheusCollector(nil)
	if err != nil {
		return nil, err
	}
	metrics.SetDefaultCollector(collector)

	s, err := store.Open(ctx, store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("opened %s database %s", cfg.Database.Driver, cfg.Database.DSN)
	return &app{cfg: cfg, logger: logger, metrics: collector, store: s}, nil
}

// Close exports metrics when a textfile is configured and closes the store.
func (a *app) Close() {
	if a.cfg.MetricsTextfile != "" {
		a.metrics.GaugeSet(metrics.LastRun.Name, float64(time.Now().Unix()))
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.logger.Warn("write metrics textfile: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database: %v", err)
	}
}

// parseID parses a positive row id given on the command line.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.E(errors.KindInvalidInput, "sbomkit", fmt.Sprintf("invalid %s %q", what, s))
	}
	return id, nil
}

// parseCreator splits "Type: name (email)". A value without a type is a
// tool.
func parseCreator(s string) store.Creator {
	c := store.Creator{Type: store.CreatorTool, Name: strings.TrimSpace(s)}
	if typ, name, ok := strings.Cut(s, ":"); ok {
		for _, t := range store.CreatorTypes {
			if strings.EqualFold(strings.TrimSpace(typ), t) {
				c.Type, c.Name = t, strings.TrimSpace(name)
				break
			}
		}
	}
	if open := strings.LastIndex(c.Name, "("); open > 0 && strings.HasSuffix(c.Name, ")") {
		c.Email = strings.TrimSpace(c.Name[open+1 : len(c.Name)-1])
		c.Name = strings.TrimSpace(c.Name[:open])
	}
	return c
}
