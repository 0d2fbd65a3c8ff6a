// Package identifier assigns namespace-scoped identifiers to the entities
// that appear in a document.
package identifier

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/store"
)

// DocumentIDString is the fixed identifier of a document inside its own
// namespace.
const DocumentIDString = "SPDXRef-DOCUMENT"

// Kinds of identified entities, used as the second id string segment.
const (
	KindPackage = "package"
	KindFile    = "file"
)

const maxNameLen = 20

// Generate builds an id string of the form
// SPDXRef-<kind>-<name>-<sha1[:4]>-<uuid[:8]>. The name part is the
// sanitized basename of name, cut to 20 characters. Missing name or digest
// parts are filled from the random UUID.
func Generate(kind, name, sha1 string) string {
	u := uuid.NewString()

	digestPart := u[24:28]
	if len(sha1) >= 4 {
		digestPart = sha1[:4]
	}
	if name == "" {
		name = u[19:23]
	}
	return strings.Join([]string{"SPDXRef", kind, Sanitize(name), digestPart + "-" + u[:8]}, "-")
}

// Sanitize returns the basename of name with every character outside
// [A-Za-z0-9] replaced by '_', cut to 20 characters.
func Sanitize(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	n := 0
	for _, r := range base {
		if n == maxNameLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

// Target names the entity an identifier is assigned to.
type Target struct {
	// Kind is KindPackage or KindFile; ignored for documents.
	Kind string

	DocumentID    int64
	PackageID     int64
	PackageFileID int64

	// Name and SHA1 seed the generated id string.
	Name string
	SHA1 string
}

// Generator produces id strings; replaced in tests.
type Generator func(kind, name, sha1 string) string

// Assigner creates identifier rows.
type Assigner struct {
	generate Generator
}

// NewAssigner returns an Assigner. A nil gen uses Generate.
func NewAssigner(gen Generator) *Assigner {
	if gen == nil {
		gen = Generate
	}
	return &Assigner{generate: gen}
}

// Assign inserts the identifier of one entity in the namespace. A duplicate
// id string or an entity that already has an identifier in the namespace
// fails with a constraint error; it is never retried or swallowed.
func (a *Assigner) Assign(ctx context.Context, tx *store.Tx, nsID int64, t Target) (store.Identifier, error) {
	id := store.Identifier{NamespaceID: nsID}
	switch {
	case t.DocumentID != 0:
		id.DocumentID = &t.DocumentID
		id.IDString = DocumentIDString
	case t.PackageID != 0:
		id.PackageID = &t.PackageID
		id.IDString = a.generate(KindPackage, t.Name, t.SHA1)
	case t.PackageFileID != 0:
		id.PackageFileID = &t.PackageFileID
		id.IDString = a.generate(KindFile, t.Name, t.SHA1)
	default:
		return store.Identifier{}, errors.E(errors.KindInvalidInput, "identifier.Assign", "target has no entity id")
	}
	return tx.InsertIdentifier(ctx, id)
}

// AssignPackage assigns identifiers to a package and to every member row of
// it, members first. It returns the package identifier.
func (a *Assigner) AssignPackage(ctx context.Context, tx *store.Tx, nsID, pkgID int64) (store.Identifier, error) {
	pkg, err := tx.Package(ctx, pkgID)
	if err != nil {
		return store.Identifier{}, err
	}
	members, err := tx.PackageFiles(ctx, pkgID)
	if err != nil {
		return store.Identifier{}, err
	}

	for _, m := range members {
		if _, err := a.Assign(ctx, tx, nsID, Target{
			PackageFileID: m.ID,
			Name:          m.FileName,
			SHA1:          m.SHA1,
		}); err != nil {
			return store.Identifier{}, errors.Wrap(err, "identifier.AssignPackage")
		}
	}

	sha1 := ""
	if pkg.SHA1 != nil {
		sha1 = *pkg.SHA1
	}
	return a.Assign(ctx, tx, nsID, Target{PackageID: pkg.ID, Name: pkg.FileName, SHA1: sha1})
}
