package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/filetype"
	"github.com/exploopio/sbomkit/pkg/licenselist"
	"github.com/exploopio/sbomkit/pkg/providers"
	"github.com/exploopio/sbomkit/pkg/relationship"
	"github.com/exploopio/sbomkit/pkg/store"
)

// =============================================================================
// dbinit
// =============================================================================

var dbinitNoConfirm bool

var dbinitCmd = &cobra.Command{
	Use:   "dbinit",
	Short: "Create the database schema and import the license list",
	Long: `Create the database schema, seed the lookup tables and import the SPDX
license list named by license_list.path or license_list.url.

An existing database is dropped and recreated after confirmation.`,
	Args: cobra.NoArgs,
	RunE: runDBInit,
}

func runDBInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.Stats(ctx); err == nil {
		if !dbinitNoConfirm && !confirm(fmt.Sprintf("Database %s already exists. Delete all data and start over?", a.cfg.Database.DSN)) {
			return errors.E(errors.KindInvalidInput, "sbomkit.dbinit", "aborted")
		}
		if err := a.store.Drop(ctx); err != nil {
			return err
		}
		a.logger.Info("dropped existing tables")
	}

	fileTypes := make([]string, 0, len(filetype.All))
	for _, t := range filetype.All {
		fileTypes = append(fileTypes, string(t))
	}
	if err := a.store.Init(ctx, store.InitOptions{
		FileTypes:         fileTypes,
		RelationshipTypes: relationship.Types,
		DefaultCreator:    parseCreator(a.cfg.Creator),
	}); err != nil {
		return err
	}
	a.logger.Info("initialized %s database %s", a.cfg.Database.Driver, a.cfg.Database.DSN)

	return importLicenseList(ctx, a)
}

func importLicenseList(ctx context.Context, a *app) error {
	src := a.cfg.LicenseList.Path
	if src == "" {
		src = a.cfg.LicenseList.URL
	}
	if src == "" {
		a.logger.Warn("no license list configured; every license will be recorded as a LicenseRef")
		return nil
	}
	list, err := licenselist.Load(ctx, src)
	if err != nil {
		return err
	}
	err = a.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.ImportLicenses(ctx, list.Entries()); err != nil {
			return err
		}
		if list.Version == "" {
			return nil
		}
		return tx.SetProperty(ctx, store.PropLicenseListVersion, list.Version)
	})
	if err != nil {
		return err
	}
	a.logger.Info("imported %d licenses from %s (list version %s)", len(list.Licenses), src, list.Version)
	return nil
}

func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// =============================================================================
// newconfig
// =============================================================================

var newconfigCmd = &cobra.Command{
	Use:   "newconfig [path]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to path, or to the --config location when
no path is given. Use "-" to write to standard output. An existing file is
never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNewConfig,
}

func runNewConfig(cmd *cobra.Command, args []string) error {
	const op = "sbomkit.newconfig"
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "-" {
		return config.WriteDefault(cmd.OutOrStdout())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.E(errors.KindInvalidInput, op, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return errors.E(errors.KindConflict, op, path+" already exists")
		}
		return errors.E(errors.KindInvalidInput, op, err)
	}
	if err := config.WriteDefault(f); err != nil {
		f.Close()
		return errors.E(errors.KindInternal, op, err)
	}
	if err := f.Close(); err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

// =============================================================================
// configtest
// =============================================================================

var configtestCmd = &cobra.Command{
	Use:   "configtest",
	Short: "Validate the configuration and print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigTest,
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := providers.NewDefaultRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := registry.Select(cfg.DefaultScanners); err != nil {
		return err
	}
	if err := cfg.Dump(cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s: configuration OK\n", configPath)
	return nil
}

func init() {
	dbinitCmd.Flags().BoolVar(&dbinitNoConfirm, "no-confirm", false, "drop an existing database without asking")

	rootCmd.AddCommand(dbinitCmd)
	rootCmd.AddCommand(newconfigCmd)
	rootCmd.AddCommand(configtestCmd)
}
