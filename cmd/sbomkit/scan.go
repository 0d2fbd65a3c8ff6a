package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/providers"
	"github.com/exploopio/sbomkit/pkg/register"
	"github.com/exploopio/sbomkit/pkg/scan"
)

// =============================================================================
// Scan Flags
// =============================================================================

var (
	packageName    string
	packageVersion string
	packageComment string
	rescan         bool
	scannerList    string
	workers        int
)

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&packageName, "package-name", "n", "", "package name (default: derived from the path)")
	cmd.Flags().StringVarP(&packageVersion, "package-version", "e", "", "package version")
	cmd.Flags().StringVarP(&packageComment, "package-comment", "c", "", "package comment")
	cmd.Flags().BoolVarP(&rescan, "rescan", "r", false, "run scanners even on files they already scanned")
	cmd.Flags().StringVarP(&scannerList, "scanners", "s", "", "comma-separated scanners (default: default_scanners)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file scans (default: workers from the configuration)")
}

// =============================================================================
// scan
// =============================================================================

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Register packages and scan their files",
	Long: `Register each path (a directory or an archive) as a package and run the
selected scanners over its files. The package id of every path is printed
to standard error.

Examples:
  sbomkit scan ./widget-1.0.tar.gz
  sbomkit scan ./src -n widget -e 1.0 -s nomos,trivy
  sbomkit scan ./src -r -s nomos_deep --workers 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newScanner(a)
	if err != nil {
		return err
	}

	var failed int
	for _, path := range args {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.scanPath(ctx, path); err != nil {
			a.logger.Error("%s: %v", path, err)
			failed++
		}
	}
	if failed > 0 {
		return errors.E(errors.KindInternal, "sbomkit.scan", fmt.Sprintf("%d of %d paths failed", failed, len(args)))
	}
	return nil
}

// scanner registers and scans one path at a time.
type scanner struct {
	app       *app
	registrar *register.Registrar
	pipeline  *scan.Pipeline
	names     []string
}

func newScanner(a *app) (*scanner, error) {
	registry, err := providers.NewDefaultRegistry(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	names := a.cfg.DefaultScanners
	if scannerList != "" {
		names = providers.SplitNames(scannerList)
	}
	if _, err := registry.Select(names); err != nil {
		return nil, err
	}

	n := a.cfg.Workers
	if workers > 0 {
		n = workers
	}
	var limiter *rate.Limiter
	if a.cfg.ProviderRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.ProviderRate), 1)
	}

	return &scanner{
		app:       a,
		registrar: register.New(a.store, register.Options{Logger: a.logger, Metrics: a.metrics}),
		pipeline: scan.New(a.store, registry, scan.Options{
			Workers: n,
			Rescan:  rescan,
			Limiter: limiter,
			Logger:  a.logger,
			Metrics: a.metrics,
		}),
		names: names,
	}, nil
}

func (s *scanner) scanPath(ctx context.Context, path string) (int64, error) {
	res, err := s.registrar.RegisterPackage(ctx, path, register.Hints{
		Name:    packageName,
		Version: packageVersion,
		Comment: packageComment,
	})
	if err != nil {
		return 0, err
	}
	defer res.Close()

	report, err := s.pipeline.Run(ctx, res.Package.ID, res.Root, s.names)
	if report != nil {
		for _, name := range report.Names() {
			st := report.Stat(name)
			s.app.logger.Debug("%s: invoked %d cached %d unavailable %d failed %d findings %d",
				name, st.Invoked, st.Cached, st.Unavailable, st.Failed, st.Findings)
		}
	}
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(os.Stderr, "%s: package_id: %d\n", path, res.Package.ID)
	return res.Package.ID, nil
}

func init() {
	addScanFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}
