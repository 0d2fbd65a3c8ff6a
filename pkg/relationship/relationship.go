// Package relationship derives the structural relationships of a document
// from package membership.
package relationship

import (
	"context"
	"strconv"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/store"
)

// Relationship types.
const (
	Describes    = "DESCRIBES"
	DescribedBy  = "DESCRIBED_BY"
	Contains     = "CONTAINS"
	ContainedBy  = "CONTAINED_BY"
	ExpandedFrom = "EXPANDED_FROM_ARCHIVE"
	Other        = "OTHER"
)

// Types lists every relationship type seeded into the store.
var Types = []string{
	Describes,
	DescribedBy,
	Contains,
	ContainedBy,
	"GENERATES",
	"GENERATED_FROM",
	"ANCESTOR_OF",
	"DESCENDANT_OF",
	"VARIANT_OF",
	"DISTRIBUTION_ARTIFACT",
	"PATCH_FOR",
	"PATCH_APPLIED",
	"COPY_OF",
	"FILE_ADDED",
	"FILE_DELETED",
	"FILE_MODIFIED",
	ExpandedFrom,
	"DYNAMIC_LINK",
	"STATIC_LINK",
	"DATA_FILE_OF",
	"TEST_CASE_OF",
	"BUILD_TOOL_OF",
	"DOCUMENTATION_OF",
	"OPTIONAL_COMPONENT_OF",
	"METAFILE_OF",
	"PACKAGE_OF",
	"AMENDS",
	"PREREQUISITE_FOR",
	"HAS_PREREQUISITE",
	Other,
}

// IsType reports whether name is a known relationship type.
func IsType(name string) bool {
	for _, t := range Types {
		if t == name {
			return true
		}
	}
	return false
}

type edge struct {
	left  int64
	typ   string
	right int64
}

// Deriver inserts derived relationships.
type Deriver struct{}

// NewDeriver returns a Deriver.
func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive inserts, for the document's package:
//
//	package CONTAINS file and file CONTAINED_BY package, per member
//	document DESCRIBES package and every member file
//	package and member files DESCRIBED_BY document
//
// Edges already present are skipped, so a second run inserts nothing. All
// identifiers must already exist in the document's namespace. It returns the
// number of edges inserted.
func (d *Deriver) Derive(ctx context.Context, tx *store.Tx, docID int64) (int, error) {
	const op = "relationship.Derive"
	doc, err := tx.Document(ctx, docID)
	if err != nil {
		return 0, err
	}

	docIdent, ok, err := tx.DocumentIdentifier(ctx, doc.NamespaceID, doc.ID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.E(errors.KindConsistency, op, "document "+strconv.FormatInt(doc.ID, 10)+" has no identifier")
	}
	pkgIdent, ok, err := tx.PackageIdentifier(ctx, doc.NamespaceID, doc.PackageID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.E(errors.KindConsistency, op, "package "+strconv.FormatInt(doc.PackageID, 10)+" has no identifier")
	}

	members, err := tx.PackageFiles(ctx, doc.PackageID)
	if err != nil {
		return 0, err
	}

	edges := []edge{
		{docIdent.ID, Describes, pkgIdent.ID},
		{pkgIdent.ID, DescribedBy, docIdent.ID},
	}
	for _, m := range members {
		fileIdent, ok, err := tx.PackageFileIdentifier(ctx, doc.NamespaceID, m.ID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.E(errors.KindConsistency, op, "package file "+strconv.FormatInt(m.ID, 10)+" has no identifier")
		}
		edges = append(edges,
			edge{pkgIdent.ID, Contains, fileIdent.ID},
			edge{fileIdent.ID, ContainedBy, pkgIdent.ID},
			edge{docIdent.ID, Describes, fileIdent.ID},
			edge{fileIdent.ID, DescribedBy, docIdent.ID},
		)
	}

	inserted := 0
	for _, e := range edges {
		added, err := d.add(ctx, tx, e, "")
		if err != nil {
			return inserted, errors.Wrap(err, op)
		}
		if added {
			inserted++
		}
	}
	return inserted, nil
}

// Add records a single relationship between two identifiers unless it is
// already present. It reports whether a row was inserted.
func (d *Deriver) Add(ctx context.Context, tx *store.Tx, left int64, typ string, right int64, comment string) (bool, error) {
	if !IsType(typ) {
		return false, errors.E(errors.KindInvalidInput, "relationship.Add", "unknown relationship type "+typ)
	}
	return d.add(ctx, tx, edge{left, typ, right}, comment)
}

func (d *Deriver) add(ctx context.Context, tx *store.Tx, e edge, comment string) (bool, error) {
	exists, err := tx.RelationshipExists(ctx, e.left, e.typ, e.right)
	if err != nil || exists {
		return false, err
	}
	if _, err := tx.InsertRelationship(ctx, store.Relationship{
		LeftID:  e.left,
		Type:    e.typ,
		RightID: e.right,
		Comment: comment,
	}); err != nil {
		return false, err
	}
	return true, nil
}
