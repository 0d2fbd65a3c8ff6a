package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// =============================================================================
// Namespaces and documents
// =============================================================================

// InsertNamespace creates a document namespace. A duplicate URI is a
// constraint error.
func (t *Tx) InsertNamespace(ctx context.Context, uri string) (Namespace, error) {
	id, err := t.insertID(ctx, "store.InsertNamespace",
		"INSERT INTO document_namespaces (uri) VALUES (?) RETURNING document_namespace_id", uri)
	if err != nil {
		return Namespace{}, err
	}
	return Namespace{ID: id, URI: uri}, nil
}

// InsertDocument creates a document row. DataLicenseID and PackageID must
// reference existing rows.
func (t *Tx) InsertDocument(ctx context.Context, d Document) (Document, error) {
	if d.Created.IsZero() {
		d.Created = time.Now().UTC()
	}
	id, err := t.insertID(ctx, "store.InsertDocument",
		`INSERT INTO documents (document_namespace_id, data_license_id, spdx_version, name,
			license_list_version, created_ts, creator_comment, document_comment, package_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING document_id`,
		d.NamespaceID, d.DataLicenseID, d.SPDXVersion, d.Name, d.LicenseListVersion,
		d.Created.Format(time.RFC3339), d.CreatorComment, d.DocumentComment, d.PackageID)
	if err != nil {
		return Document{}, err
	}
	d.ID = id
	return d, nil
}

// Document returns the document with the given id.
func (t *Tx) Document(ctx context.Context, id int64) (Document, error) {
	var (
		d       Document
		created string
	)
	err := t.get(ctx, "store.Document",
		`SELECT document_id, document_namespace_id, data_license_id, spdx_version, name,
			license_list_version, created_ts, creator_comment, document_comment, package_id
		 FROM documents WHERE document_id = ?`, []any{id},
		&d.ID, &d.NamespaceID, &d.DataLicenseID, &d.SPDXVersion, &d.Name,
		&d.LicenseListVersion, &created, &d.CreatorComment, &d.DocumentComment, &d.PackageID)
	if err == sql.ErrNoRows {
		return Document{}, errors.E(errors.KindNotFound, "store.Document",
			"document "+strconv.FormatInt(id, 10)+" not found", errors.ErrNotFound)
	}
	if err != nil {
		return Document{}, err
	}
	d.Created, _ = time.Parse(time.RFC3339, created)
	return d, nil
}

// Namespace returns the namespace with the given id.
func (t *Tx) Namespace(ctx context.Context, id int64) (Namespace, error) {
	ns := Namespace{ID: id}
	err := t.get(ctx, "store.Namespace",
		"SELECT uri FROM document_namespaces WHERE document_namespace_id = ?", []any{id}, &ns.URI)
	if err == sql.ErrNoRows {
		return Namespace{}, errors.E(errors.KindConsistency, "store.Namespace",
			"namespace "+strconv.FormatInt(id, 10)+" missing")
	}
	return ns, err
}

// =============================================================================
// Creators
// =============================================================================

// EnsureCreator returns the creator matching c's type, name and email,
// inserting it when absent.
func (t *Tx) EnsureCreator(ctx context.Context, c Creator) (Creator, error) {
	const op = "store.EnsureCreator"
	typeID, err := t.lookupID(ctx, "creator_types", "creator_type_id", c.Type)
	if err != nil {
		return Creator{}, errors.Wrap(err, op)
	}

	find := func() error {
		return t.get(ctx, op,
			"SELECT creator_id FROM creators WHERE creator_type_id = ? AND name = ? AND email = ?",
			[]any{typeID, c.Name, c.Email}, &c.ID)
	}
	err = find()
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return Creator{}, err
	}

	c.ID, err = t.insertID(ctx, op,
		`INSERT INTO creators (creator_type_id, name, email) VALUES (?, ?, ?)
		 ON CONFLICT (creator_type_id, name, email) DO NOTHING
		 RETURNING creator_id`, typeID, c.Name, c.Email)
	if err == sql.ErrNoRows {
		err = find()
	}
	if err != nil {
		return Creator{}, errors.Wrap(err, op)
	}
	return c, nil
}

// Creator returns the creator with the given id.
func (t *Tx) Creator(ctx context.Context, id int64) (Creator, error) {
	c := Creator{ID: id}
	err := t.get(ctx, "store.Creator",
		`SELECT ct.name, c.name, c.email
		 FROM creators c JOIN creator_types ct ON ct.creator_type_id = c.creator_type_id
		 WHERE c.creator_id = ?`, []any{id}, &c.Type, &c.Name, &c.Email)
	if err == sql.ErrNoRows {
		return Creator{}, errors.E(errors.KindNotFound, "store.Creator",
			"creator "+strconv.FormatInt(id, 10)+" not found", errors.ErrNotFound)
	}
	return c, err
}

// DefaultCreator returns the creator recorded at initialization.
func (t *Tx) DefaultCreator(ctx context.Context) (Creator, error) {
	v, ok, err := t.Property(ctx, PropDefaultCreator)
	if err != nil {
		return Creator{}, err
	}
	if !ok {
		return Creator{}, errors.E(errors.KindNotFound, "store.DefaultCreator", "no default creator configured", errors.ErrNotFound)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return Creator{}, errors.E(errors.KindConsistency, "store.DefaultCreator", "bad default creator id "+v)
	}
	return t.Creator(ctx, id)
}

// AddDocumentCreator credits a creator on a document.
func (t *Tx) AddDocumentCreator(ctx context.Context, docID, creatorID int64) error {
	_, err := t.exec(ctx, "store.AddDocumentCreator",
		`INSERT INTO documents_creators (document_id, creator_id) VALUES (?, ?)
		 ON CONFLICT (document_id, creator_id) DO NOTHING`, docID, creatorID)
	return err
}

// =============================================================================
// Identifiers
// =============================================================================

// InsertIdentifier inserts an identifier row. Exactly one target id must be
// set; a duplicate id string or target within the namespace is a constraint
// error.
func (t *Tx) InsertIdentifier(ctx context.Context, id Identifier) (Identifier, error) {
	const op = "store.InsertIdentifier"
	targets := 0
	for _, p := range []*int64{id.DocumentID, id.PackageID, id.PackageFileID} {
		if p != nil {
			targets++
		}
	}
	if targets != 1 {
		return Identifier{}, errors.E(errors.KindInvalidInput, op, "identifier must name exactly one target")
	}

	newID, err := t.insertID(ctx, op,
		`INSERT INTO identifiers (document_namespace_id, id_string, document_id, package_id, package_file_id)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING identifier_id`,
		id.NamespaceID, id.IDString, id.DocumentID, id.PackageID, id.PackageFileID)
	if err != nil {
		return Identifier{}, err
	}
	id.ID = newID
	return id, nil
}

const identifierColumns = `identifier_id, document_namespace_id, id_string, document_id, package_id, package_file_id`

func (t *Tx) identifierWhere(ctx context.Context, op, where string, args ...any) (Identifier, bool, error) {
	var id Identifier
	err := t.get(ctx, op, "SELECT "+identifierColumns+" FROM identifiers WHERE "+where, args,
		&id.ID, &id.NamespaceID, &id.IDString, &id.DocumentID, &id.PackageID, &id.PackageFileID)
	if err == sql.ErrNoRows {
		return Identifier{}, false, nil
	}
	if err != nil {
		return Identifier{}, false, err
	}
	return id, true, nil
}

// DocumentIdentifier returns the identifier of a document in its namespace.
func (t *Tx) DocumentIdentifier(ctx context.Context, nsID, docID int64) (Identifier, bool, error) {
	return t.identifierWhere(ctx, "store.DocumentIdentifier",
		"document_namespace_id = ? AND document_id = ?", nsID, docID)
}

// PackageIdentifier returns the identifier of a package in a namespace.
func (t *Tx) PackageIdentifier(ctx context.Context, nsID, pkgID int64) (Identifier, bool, error) {
	return t.identifierWhere(ctx, "store.PackageIdentifier",
		"document_namespace_id = ? AND package_id = ?", nsID, pkgID)
}

// PackageFileIdentifier returns the identifier of a membership row in a namespace.
func (t *Tx) PackageFileIdentifier(ctx context.Context, nsID, pkgFileID int64) (Identifier, bool, error) {
	return t.identifierWhere(ctx, "store.PackageFileIdentifier",
		"document_namespace_id = ? AND package_file_id = ?", nsID, pkgFileID)
}

// IdentifierByString returns the identifier with the given id string in a namespace.
func (t *Tx) IdentifierByString(ctx context.Context, nsID int64, idString string) (Identifier, bool, error) {
	return t.identifierWhere(ctx, "store.IdentifierByString",
		"document_namespace_id = ? AND id_string = ?", nsID, idString)
}

// =============================================================================
// Relationships
// =============================================================================

// RelationshipExists reports whether the typed edge is already recorded.
func (t *Tx) RelationshipExists(ctx context.Context, left int64, typ string, right int64) (bool, error) {
	n, err := t.count(ctx, "store.RelationshipExists",
		`SELECT COUNT(*) FROM relationships r
		 JOIN relationship_types rt ON rt.relationship_type_id = r.relationship_type_id
		 WHERE r.left_identifier_id = ? AND r.right_identifier_id = ? AND rt.name = ?`,
		left, right, typ)
	return n > 0, err
}

// InsertRelationship inserts a typed edge between two identifiers. Callers
// check RelationshipExists first; a duplicate edge is a constraint error.
func (t *Tx) InsertRelationship(ctx context.Context, r Relationship) (Relationship, error) {
	const op = "store.InsertRelationship"
	typeID, err := t.lookupID(ctx, "relationship_types", "relationship_type_id", r.Type)
	if err != nil {
		return Relationship{}, errors.Wrap(err, op)
	}
	r.ID, err = t.insertID(ctx, op,
		`INSERT INTO relationships (left_identifier_id, relationship_type_id, right_identifier_id, relationship_comment)
		 VALUES (?, ?, ?, ?)
		 RETURNING relationship_id`, r.LeftID, typeID, r.RightID, r.Comment)
	if err != nil {
		return Relationship{}, err
	}
	return r, nil
}

// =============================================================================
// Annotations
// =============================================================================

// InsertAnnotation attaches a comment to an identifier of a document.
func (t *Tx) InsertAnnotation(ctx context.Context, a Annotation) (Annotation, error) {
	const op = "store.InsertAnnotation"
	typeID, err := t.lookupID(ctx, "annotation_types", "annotation_type_id", a.Type)
	if err != nil {
		return Annotation{}, errors.Wrap(err, op)
	}
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	a.ID, err = t.insertID(ctx, op,
		`INSERT INTO annotations (document_id, annotation_type_id, identifier_id, creator_id, created_ts, comment)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING annotation_id`,
		a.DocumentID, typeID, a.IdentifierID, a.CreatorID, a.Created.Format(time.RFC3339), a.Comment)
	if err != nil {
		return Annotation{}, err
	}
	return a, nil
}
