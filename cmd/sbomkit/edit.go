package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/register"
	"github.com/exploopio/sbomkit/pkg/relationship"
	"github.com/exploopio/sbomkit/pkg/store"
)

// =============================================================================
// annotate
// =============================================================================

var (
	annotateType      string
	annotateAnnotator string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <document-id> <spdx-id> <comment>",
	Short: "Annotate an element of a document",
	Long: `Attach a REVIEW or OTHER annotation to the document itself, its package or
one of its files, addressed by SPDX id.

Examples:
  sbomkit annotate 3 SPDXRef-File-2 "license text checked" -a "Person: Jo Doe (jo@example.com)"
  sbomkit annotate 3 SPDXRef-DOCUMENT "internal build" -t OTHER`,
	Args: cobra.ExactArgs(3),
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	docID, err := parseID("document id", args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	annotator := a.cfg.Creator
	if annotateAnnotator != "" {
		annotator = annotateAnnotator
	}
	return newCreator(a).Annotate(ctx, docID, args[1], strings.ToUpper(annotateType), parseCreator(annotator), args[2])
}

// =============================================================================
// relate
// =============================================================================

var relateComment string

var relateCmd = &cobra.Command{
	Use:   "relate <document-id> <spdx-id> <type> <spdx-id>",
	Short: "Add a relationship between two elements of a document",
	Long: `Record a relationship that cannot be derived from the package contents,
such as a static link between two files. Adding an existing relationship
is a no-op.

Example:
  sbomkit relate 3 SPDXRef-File-1 STATIC_LINK SPDXRef-File-4`,
	Args: cobra.ExactArgs(4),
	RunE: runRelate,
}

func runRelate(cmd *cobra.Command, args []string) error {
	docID, err := parseID("document id", args[0])
	if err != nil {
		return err
	}
	typ := strings.ToUpper(args[2])
	if !relationship.IsType(typ) {
		return errors.E(errors.KindInvalidInput, "sbomkit.relate", "unknown relationship type "+args[2])
	}
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	added, err := newCreator(a).Relate(ctx, docID, args[1], typ, args[3], relateComment)
	if err != nil {
		return err
	}
	if !added {
		a.logger.Info("%s %s %s already recorded", args[1], typ, args[3])
	}
	return nil
}

// =============================================================================
// setlicense
// =============================================================================

var (
	concludedLicense string
	declaredLicense  string
)

var setlicenseCmd = &cobra.Command{
	Use:   "setlicense <package-id>",
	Short: "Set the concluded and declared license of a package",
	Long: `Record the concluded and declared license of a registered package by short
name. An omitted flag clears the field, which renders as NOASSERTION.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetlicense,
}

func runSetlicense(cmd *cobra.Command, args []string) error {
	pkgID, err := parseID("package id", args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r := register.New(a.store, register.Options{Logger: a.logger, Metrics: a.metrics})
	return r.SetPackageLicenses(ctx, pkgID, concludedLicense, declaredLicense)
}

// =============================================================================
// contributor
// =============================================================================

var contributorCmd = &cobra.Command{
	Use:   "contributor <file> <name>...",
	Short: "Record contributors of a file",
	Long: `Register a file by content and record who contributed to it. Every document
listing the same content shows the contributors.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runContributor,
}

func runContributor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r := register.New(a.store, register.Options{Logger: a.logger, Metrics: a.metrics})
	f, err := r.AddContributors(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: file_id: %d\n", args[0], f.ID)
	return nil
}

func init() {
	annotateCmd.Flags().StringVarP(&annotateType, "type", "t", store.AnnotationReview, "annotation type: REVIEW or OTHER")
	annotateCmd.Flags().StringVarP(&annotateAnnotator, "annotator", "a", "", `annotator as "Type: name (email)" (default: the configured creator)`)

	relateCmd.Flags().StringVarP(&relateComment, "comment", "c", "", "relationship comment")

	setlicenseCmd.Flags().StringVar(&concludedLicense, "concluded", "", "concluded license short name")
	setlicenseCmd.Flags().StringVar(&declaredLicense, "declared", "", "declared license short name")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(setlicenseCmd)
	rootCmd.AddCommand(contributorCmd)
}
