package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/providers"
)

// =============================================================================
// scanners
// =============================================================================

var scannersCmd = &cobra.Command{
	Use:   "scanners",
	Short: "List the available scanners",
	Args:  cobra.NoArgs,
	RunE:  runScanners,
}

func runScanners(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := providers.NewDefaultRegistry(cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available scanners:")
	for _, name := range registry.List() {
		p, _ := registry.Get(name)
		status := "built-in"
		if ic, ok := p.(core.InstallChecker); ok {
			installed, version, err := ic.IsInstalled(ctx)
			switch {
			case err != nil:
				status = "error: " + err.Error()
			case !installed:
				status = "not installed"
			case version != "":
				status = "installed (" + version + ")"
			default:
				status = "installed"
			}
		}
		if _, ok := p.(core.PackageProvider); ok {
			status += ", whole package"
		}
		marker := " "
		if slices.Contains(cfg.DefaultScanners, name) {
			marker = "*"
		}
		fmt.Fprintf(out, "  %s %-15s - %s\n", marker, name, status)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "* runs when --scanners is not given")
	return nil
}

// =============================================================================
// stats
// =============================================================================

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts of the database tables",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "%-20s %s\n", "driver", st.Driver)
	for _, row := range []struct {
		name string
		n    int64
	}{
		{"files", st.Files},
		{"packages", st.Packages},
		{"package files", st.PackageFiles},
		{"licenses", st.Licenses},
		{"file licenses", st.FileLicenses},
		{"documents", st.Documents},
		{"namespaces", st.Namespaces},
		{"identifiers", st.Identifiers},
		{"relationships", st.Relationships},
		{"annotations", st.Annotations},
		{"creators", st.Creators},
		{"scanners", st.Scanners},
		{"file scans", st.FileScans},
		{"package scans", st.PackageScans},
	} {
		fmt.Fprintf(out, "%-20s %d\n", row.name, row.n)
	}
	return nil
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the counts as JSON")

	rootCmd.AddCommand(scannersCmd)
	rootCmd.AddCommand(statsCmd)
}
