package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/document"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/publish"
	"github.com/exploopio/sbomkit/pkg/render"
	"github.com/exploopio/sbomkit/pkg/sign"
)

// =============================================================================
// Document Flags
// =============================================================================

var (
	docName    string
	docComment string

	outFormat  string
	outPath    string
	outPublish bool
	outSign    bool
)

func addDocumentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&docName, "doc-name", "N", "", "document name (default: the package name)")
	cmd.Flags().StringVarP(&docComment, "doc-comment", "C", "", "document comment")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outFormat, "format", "F", string(render.FormatTag), "output format: tag or json")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the document to a file instead of standard output")
	cmd.Flags().BoolVar(&outPublish, "publish", false, "copy the document to the configured publish sinks")
	cmd.Flags().BoolVar(&outSign, "sign", false, "add a detached OpenPGP signature (.asc)")
}

// =============================================================================
// generate
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate <package-id>",
	Short: "Create a new document for a scanned package",
	Long: `Create a new document describing a registered package. Every run creates
an independent document with its own namespace; the package and its files
are shared. The new document id is printed to standard output.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
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

	created, err := createDocument(ctx, a, pkgID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "document_id: %d\n", created.DocumentID)
	return nil
}

func newCreator(a *app) *document.Creator {
	return document.NewCreator(a.store, document.Config{
		NamespacePrefix: a.cfg.NamespacePrefix,
		Logger:          a.logger,
		Metrics:         a.metrics,
	})
}

func createDocument(ctx context.Context, a *app, pkgID int64) (*document.Created, error) {
	return newCreator(a).Create(ctx, pkgID, document.Options{Name: docName, Comment: docComment})
}

// =============================================================================
// print
// =============================================================================

var printCmd = &cobra.Command{
	Use:   "print <document-id>",
	Short: "Render a document",
	Long: `Render a stored document as SPDX tag-value or JSON.

Examples:
  sbomkit print 3
  sbomkit print 3 -F json -o widget.spdx.json --sign
  sbomkit print 3 --publish`,
	Args: cobra.ExactArgs(1),
	RunE: runPrint,
}

func runPrint(cmd *cobra.Command, args []string) error {
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

	return emitDocument(ctx, a, docID, cmd.OutOrStdout())
}

// =============================================================================
// oneshot
// =============================================================================

var oneshotCmd = &cobra.Command{
	Use:   "oneshot <path>",
	Short: "Scan a path, create a document and render it",
	Long: `Register and scan one path, create a document for the package and render
it, in one step. Accepts the flags of scan, generate and print.`,
	Args: cobra.ExactArgs(1),
	RunE: runOneshot,
}

func runOneshot(cmd *cobra.Command, args []string) error {
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
	pkgID, err := s.scanPath(ctx, args[0])
	if err != nil {
		return err
	}
	created, err := createDocument(ctx, a, pkgID)
	if err != nil {
		return err
	}
	return emitDocument(ctx, a, created.DocumentID, cmd.OutOrStdout())
}

// =============================================================================
// Output
// =============================================================================

// emitDocument renders a document and writes it to --output or w, then
// signs and publishes it as requested.
func emitDocument(ctx context.Context, a *app, docID int64, w io.Writer) error {
	const op = "sbomkit.emit"
	format, err := render.ParseFormat(outFormat)
	if err != nil {
		return err
	}
	if outSign && outPath == "" && !outPublish {
		return errors.E(errors.KindInvalidInput, op, "--sign needs --output or --publish")
	}

	doc, err := document.NewAssembler(a.store).Assemble(ctx, docID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := render.Render(&buf, doc, format); err != nil {
		return err
	}
	data := buf.Bytes()

	var sig []byte
	if outSign {
		signer, err := loadSigner(a.cfg.Signing)
		if err != nil {
			return err
		}
		if sig, err = signer.SignDetached(data); err != nil {
			return err
		}
		a.logger.Info("signed document %d with key %s", docID, signer.Fingerprint())
	}

	if outPath == "" {
		if _, err := w.Write(data); err != nil {
			return errors.E(errors.KindInternal, op, err)
		}
	} else {
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return errors.E(errors.KindInvalidInput, op, err)
		}
		if sig != nil {
			if err := os.WriteFile(outPath+".asc", sig, 0o644); err != nil {
				return errors.E(errors.KindInvalidInput, op, err)
			}
		}
		a.logger.Info("wrote document %d to %s", docID, outPath)
	}

	if !outPublish {
		return nil
	}
	sink, err := publish.FromConfig(a.cfg.Publish)
	if err != nil {
		return err
	}
	if sink == nil {
		return errors.E(errors.KindInvalidInput, op, "--publish given but no publish sink is configured")
	}
	name := objectName(doc, format)
	if err := sink.Put(ctx, name, data); err != nil {
		return err
	}
	if sig != nil {
		if err := sink.Put(ctx, name+".asc", sig); err != nil {
			return err
		}
	}
	a.logger.Info("published document %d as %s", docID, name)
	return nil
}

func loadSigner(cfg config.Signing) (*sign.Signer, error) {
	if cfg.KeyFile == "" {
		return nil, errors.E(errors.KindInvalidInput, "sbomkit.loadSigner", "--sign needs signing.key_file in the configuration")
	}
	var passphrase []byte
	if cfg.PassphraseEnv != "" {
		passphrase = []byte(os.Getenv(cfg.PassphraseEnv))
	}
	return sign.LoadSigner(cfg.KeyFile, passphrase)
}

// objectName is "<name>-<document id><extension>" with unsafe characters
// replaced.
func objectName(doc *document.Document, format render.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, doc.Name)
	return fmt.Sprintf("%s-%d%s", name, doc.ID, format.Extension())
}

func init() {
	addDocumentFlags(generateCmd)

	addOutputFlags(printCmd)

	addScanFlags(oneshotCmd)
	addDocumentFlags(oneshotCmd)
	addOutputFlags(oneshotCmd)

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(oneshotCmd)
}
