// Package document creates documents for registered packages and assembles
// them back into a tree for rendering.
//
// Creation runs in one transaction: namespace, document row, default
// creator, identifiers for the document, the package and every member, and
// the derived relationships. A document either exists with all of these or
// not at all.
package document

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/identifier"
	"github.com/exploopio/sbomkit/pkg/metrics"
	"github.com/exploopio/sbomkit/pkg/relationship"
	"github.com/exploopio/sbomkit/pkg/retry"
	"github.com/exploopio/sbomkit/pkg/store"
)

// Document header values.
const (
	SPDXVersion               = "SPDX-2.0"
	DefaultLicenseListVersion = "2.0"
)

// Config configures a Creator.
type Config struct {
	// NamespacePrefix is prepended to every namespace URI.
	NamespacePrefix string

	// Retry controls how transient store errors are retried. Nil uses the
	// retry package defaults.
	Retry *retry.Config

	// Assigner generates identifiers; nil uses identifier.Generate.
	Assigner *identifier.Assigner

	Logger  core.Logger
	Metrics metrics.Collector
}

// Options are per-document overrides.
type Options struct {
	// Name defaults to the package name.
	Name           string
	Comment        string
	CreatorComment string
}

// Created identifies a new document.
type Created struct {
	DocumentID int64
	Namespace  string
}

// Creator creates and annotates documents.
type Creator struct {
	store    *store.Store
	prefix   string
	retry    *retry.Config
	assigner *identifier.Assigner
	deriver  *relationship.Deriver
	logger   core.Logger
	metrics  metrics.Collector
}

// NewCreator returns a Creator backed by s.
func NewCreator(s *store.Store, cfg Config) *Creator {
	logger := core.LoggerOrDefault(cfg.Logger)
	rc := cfg.Retry
	if rc == nil {
		rc = &retry.Config{Logger: logger}
	}
	assigner := cfg.Assigner
	if assigner == nil {
		assigner = identifier.NewAssigner(nil)
	}
	return &Creator{
		store:    s,
		prefix:   strings.TrimRight(cfg.NamespacePrefix, "/"),
		retry:    rc,
		assigner: assigner,
		deriver:  relationship.NewDeriver(),
		logger:   logger,
		metrics:  metrics.OrDefault(cfg.Metrics),
	}
}

// Create makes a new document describing the package. Every call creates
// an independent document with a fresh namespace. The transaction is
// retried from scratch on busy or timeout errors.
func (c *Creator) Create(ctx context.Context, pkgID int64, opts Options) (*Created, error) {
	var out *Created
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.WithTx(ctx, func(tx *store.Tx) error {
			created, err := c.create(ctx, tx, pkgID, opts)
			out = created
			return err
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "document.Create")
	}
	c.metrics.CounterInc(metrics.DocumentsCreated.Name)
	c.logger.Info("document_id: %d namespace: %s", out.DocumentID, out.Namespace)
	return out, nil
}

func (c *Creator) create(ctx context.Context, tx *store.Tx, pkgID int64, opts Options) (*Created, error) {
	const op = "document.create"
	pkg, err := tx.Package(ctx, pkgID)
	if err != nil {
		return nil, err
	}
	dataLicense, ok, err := tx.LicenseByShortName(ctx, store.DataLicense.ShortName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.E(errors.KindConsistency, op, "data license "+store.DataLicense.ShortName+" missing; run dbinit")
	}
	listVersion, ok, err := tx.Property(ctx, store.PropLicenseListVersion)
	if err != nil {
		return nil, err
	}
	if !ok || listVersion == "" {
		listVersion = DefaultLicenseListVersion
	}

	name := opts.Name
	if name == "" {
		name = pkg.Name
	}
	ns, err := tx.InsertNamespace(ctx, c.prefix+"/"+name+"-"+uuid.NewString())
	if err != nil {
		return nil, err
	}
	doc, err := tx.InsertDocument(ctx, store.Document{
		NamespaceID:        ns.ID,
		DataLicenseID:      dataLicense.ID,
		SPDXVersion:        SPDXVersion,
		Name:               name,
		LicenseListVersion: listVersion,
		CreatorComment:     opts.CreatorComment,
		DocumentComment:    opts.Comment,
		PackageID:          pkg.ID,
	})
	if err != nil {
		return nil, err
	}

	creator, err := tx.DefaultCreator(ctx)
	switch {
	case errors.IsNotFoundError(err):
		c.logger.Warn("no default creator configured; document %d has no creators", doc.ID)
	case err != nil:
		return nil, err
	default:
		if err := tx.AddDocumentCreator(ctx, doc.ID, creator.ID); err != nil {
			return nil, err
		}
	}

	if _, err := c.assigner.Assign(ctx, tx, ns.ID, identifier.Target{DocumentID: doc.ID}); err != nil {
		return nil, err
	}
	if _, err := c.assigner.AssignPackage(ctx, tx, ns.ID, pkg.ID); err != nil {
		return nil, err
	}
	n, err := c.deriver.Derive(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("document %d: %d relationships derived", doc.ID, n)

	return &Created{DocumentID: doc.ID, Namespace: ns.URI}, nil
}

// Annotate attaches a comment by annotator to the element of the document
// named by idString.
func (c *Creator) Annotate(ctx context.Context, docID int64, idString, annotationType string, annotator store.Creator, comment string) error {
	const op = "document.Annotate"
	switch annotationType {
	case store.AnnotationReview, store.AnnotationOther:
	default:
		return errors.E(errors.KindInvalidInput, op, "unknown annotation type "+annotationType)
	}
	if annotator.Type == "" {
		annotator.Type = store.CreatorPerson
	}
	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		doc, err := tx.Document(ctx, docID)
		if err != nil {
			return err
		}
		ident, err := element(ctx, tx, doc, idString)
		if err != nil {
			return errors.Wrap(err, op)
		}
		cr, err := tx.EnsureCreator(ctx, annotator)
		if err != nil {
			return err
		}
		_, err = tx.InsertAnnotation(ctx, store.Annotation{
			DocumentID:   doc.ID,
			Type:         annotationType,
			IdentifierID: ident.ID,
			CreatorID:    cr.ID,
			Comment:      comment,
		})
		return err
	})
}

// Relate records a manual relationship between two elements of a document.
// It reports false when the relationship already exists.
func (c *Creator) Relate(ctx context.Context, docID int64, left, typ, right, comment string) (bool, error) {
	const op = "document.Relate"
	var added bool
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		doc, err := tx.Document(ctx, docID)
		if err != nil {
			return err
		}
		l, err := element(ctx, tx, doc, left)
		if err != nil {
			return err
		}
		r, err := element(ctx, tx, doc, right)
		if err != nil {
			return err
		}
		added, err = c.deriver.Add(ctx, tx, l.ID, typ, r.ID, comment)
		return err
	})
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	return added, nil
}

// element resolves an SPDX id string within a document's namespace.
func element(ctx context.Context, tx *store.Tx, doc store.Document, idString string) (store.Identifier, error) {
	ident, ok, err := tx.IdentifierByString(ctx, doc.NamespaceID, idString)
	if err != nil {
		return store.Identifier{}, err
	}
	if !ok {
		return store.Identifier{}, errors.E(errors.KindNotFound, "document.element", "no element "+idString+" in document", errors.ErrNotFound)
	}
	return ident, nil
}
