package store

import (
	"context"
	"database/sql"
	"time"
)

// Read models used to assemble documents. Every query returns a fully read
// slice so callers can issue follow-up queries on the same transaction.

// RelationshipView is a relationship with both ends resolved to id strings.
type RelationshipView struct {
	Left    string `json:"left"`
	Type    string `json:"type"`
	Right   string `json:"right"`
	Comment string `json:"comment,omitempty"`
}

// AnnotationView is an annotation with its type, creator and target resolved.
type AnnotationView struct {
	Target  string    `json:"target"`
	Type    string    `json:"type"`
	Creator Creator   `json:"creator"`
	Created time.Time `json:"created"`
	Comment string    `json:"comment"`
}

// DocumentFileRow is one member of a document's package together with its
// identifier in the document's namespace. IdentifierID is nil when the
// member has no identifier.
type DocumentFileRow struct {
	PackageFileID      int64
	FileName           string
	ConcludedLicenseID *int64
	LicenseComment     string
	IdentifierID       *int64
	IDString           *string
	File               File
}

// LicenseFinding is a license associated with a file, with its evidence.
type LicenseFinding struct {
	License       License
	ExtractedText string
}

// DocumentCreators returns the creators credited on a document, ordered by id.
func (t *Tx) DocumentCreators(ctx context.Context, docID int64) ([]Creator, error) {
	const op = "store.DocumentCreators"
	rows, err := t.query(ctx, op,
		`SELECT c.creator_id, ct.name, c.name, c.email
		 FROM documents_creators dc
		 JOIN creators c ON c.creator_id = dc.creator_id
		 JOIN creator_types ct ON ct.creator_type_id = c.creator_type_id
		 WHERE dc.document_id = ?
		 ORDER BY c.creator_id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Creator
	for rows.Next() {
		var c Creator
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &c.Email); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, c)
	}
	return out, t.s.classify(op, rows.Err())
}

// Annotations returns the annotations of a document attached to the given
// identifier, ordered by creation.
func (t *Tx) Annotations(ctx context.Context, docID, identifierID int64) ([]AnnotationView, error) {
	const op = "store.Annotations"
	rows, err := t.query(ctx, op,
		`SELECT i.id_string, atp.name, c.creator_id, ct.name, c.name, c.email, a.created_ts, a.comment
		 FROM annotations a
		 JOIN annotation_types atp ON atp.annotation_type_id = a.annotation_type_id
		 JOIN identifiers i ON i.identifier_id = a.identifier_id
		 JOIN creators c ON c.creator_id = a.creator_id
		 JOIN creator_types ct ON ct.creator_type_id = c.creator_type_id
		 WHERE a.document_id = ? AND a.identifier_id = ?
		 ORDER BY a.created_ts, a.annotation_id`, docID, identifierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnnotationView
	for rows.Next() {
		var (
			a       AnnotationView
			created string
		)
		if err := rows.Scan(&a.Target, &a.Type, &a.Creator.ID, &a.Creator.Type, &a.Creator.Name,
			&a.Creator.Email, &created, &a.Comment); err != nil {
			return nil, t.s.classify(op, err)
		}
		a.Created, _ = time.Parse(time.RFC3339, created)
		out = append(out, a)
	}
	return out, t.s.classify(op, rows.Err())
}

// RelationshipsFrom returns the relationships whose left side is the given
// identifier, ordered by type and right id string.
func (t *Tx) RelationshipsFrom(ctx context.Context, identifierID int64) ([]RelationshipView, error) {
	const op = "store.RelationshipsFrom"
	rows, err := t.query(ctx, op,
		`SELECT l.id_string, rt.name, r.id_string, rel.relationship_comment
		 FROM relationships rel
		 JOIN relationship_types rt ON rt.relationship_type_id = rel.relationship_type_id
		 JOIN identifiers l ON l.identifier_id = rel.left_identifier_id
		 JOIN identifiers r ON r.identifier_id = rel.right_identifier_id
		 WHERE rel.left_identifier_id = ?
		 ORDER BY rt.name, r.id_string`, identifierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RelationshipView
	for rows.Next() {
		var r RelationshipView
		if err := rows.Scan(&r.Left, &r.Type, &r.Right, &r.Comment); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, r)
	}
	return out, t.s.classify(op, rows.Err())
}

// DocumentFiles returns the members of a package with their identifiers in
// the given namespace, ordered by file name.
func (t *Tx) DocumentFiles(ctx context.Context, nsID, pkgID int64) ([]DocumentFileRow, error) {
	const op = "store.DocumentFiles"
	rows, err := t.query(ctx, op,
		`SELECT pf.package_file_id, pf.file_name, pf.concluded_license_id, pf.license_comment,
			i.identifier_id, i.id_string,
			f.file_id, f.sha1, ft.name, f.copyright_text, f.comment, f.notice
		 FROM packages_files pf
		 JOIN files f ON f.file_id = pf.file_id
		 JOIN file_types ft ON ft.file_type_id = f.file_type_id
		 LEFT JOIN identifiers i ON i.package_file_id = pf.package_file_id AND i.document_namespace_id = ?
		 WHERE pf.package_id = ?
		 ORDER BY pf.file_name`, nsID, pkgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentFileRow
	for rows.Next() {
		var r DocumentFileRow
		if err := rows.Scan(&r.PackageFileID, &r.FileName, &r.ConcludedLicenseID, &r.LicenseComment,
			&r.IdentifierID, &r.IDString,
			&r.File.ID, &r.File.SHA1, &r.File.Type, &r.File.CopyrightText, &r.File.Comment, &r.File.Notice); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, r)
	}
	return out, t.s.classify(op, rows.Err())
}

// FileLicenseFindings returns the licenses associated with a file ordered
// by short name.
func (t *Tx) FileLicenseFindings(ctx context.Context, fileID int64) ([]LicenseFinding, error) {
	const op = "store.FileLicenseFindings"
	rows, err := t.query(ctx, op,
		`SELECT l.license_id, l.name, l.short_name, l.cross_reference, l.comment, l.is_spdx_official,
			fl.extracted_text
		 FROM files_licenses fl JOIN licenses l ON l.license_id = fl.license_id
		 WHERE fl.file_id = ?
		 ORDER BY l.short_name`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LicenseFinding
	for rows.Next() {
		var lf LicenseFinding
		l := &lf.License
		if err := rows.Scan(&l.ID, &l.Name, &l.ShortName, &l.CrossReference, &l.Comment, &l.IsOfficial,
			&lf.ExtractedText); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, lf)
	}
	return out, t.s.classify(op, rows.Err())
}

// LicenseCount is a license with the number of package members it was
// found on.
type LicenseCount struct {
	License License
	Count   int64
}

// PackageLicenseSummary returns the distinct licenses found on members of
// the package with per-license member counts, ordered by short name.
func (t *Tx) PackageLicenseSummary(ctx context.Context, pkgID int64) ([]LicenseCount, error) {
	const op = "store.PackageLicenseSummary"
	rows, err := t.query(ctx, op,
		`SELECT l.license_id, l.name, l.short_name, l.cross_reference, l.comment, l.is_spdx_official,
			COUNT(*)
		 FROM packages_files pf
		 JOIN files_licenses fl ON fl.file_id = pf.file_id
		 JOIN licenses l ON l.license_id = fl.license_id
		 WHERE pf.package_id = ?
		 GROUP BY l.license_id, l.name, l.short_name, l.cross_reference, l.comment, l.is_spdx_official
		 ORDER BY l.short_name`, pkgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LicenseCount
	for rows.Next() {
		var lc LicenseCount
		l := &lc.License
		if err := rows.Scan(&l.ID, &l.Name, &l.ShortName, &l.CrossReference, &l.Comment, &l.IsOfficial, &lc.Count); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, lc)
	}
	return out, t.s.classify(op, rows.Err())
}

// ExtractedLicense is a non-official license with the smallest evidence
// text recorded for it.
type ExtractedLicense struct {
	License       License
	ExtractedText string
}

// UnofficialLicenses returns the non-official licenses found on members of
// the package, each with its lexically smallest non-empty evidence text.
func (t *Tx) UnofficialLicenses(ctx context.Context, pkgID int64) ([]ExtractedLicense, error) {
	const op = "store.UnofficialLicenses"
	rows, err := t.query(ctx, op,
		`SELECT l.license_id, l.name, l.short_name, l.cross_reference, l.comment, l.is_spdx_official,
			MIN(NULLIF(fl.extracted_text, ''))
		 FROM packages_files pf
		 JOIN files_licenses fl ON fl.file_id = pf.file_id
		 JOIN licenses l ON l.license_id = fl.license_id
		 WHERE pf.package_id = ? AND l.is_spdx_official = ?
		 GROUP BY l.license_id, l.name, l.short_name, l.cross_reference, l.comment, l.is_spdx_official
		 ORDER BY l.short_name`, pkgID, false)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExtractedLicense
	for rows.Next() {
		var (
			e    ExtractedLicense
			text sql.NullString
		)
		l := &e.License
		if err := rows.Scan(&l.ID, &l.Name, &l.ShortName, &l.CrossReference, &l.Comment, &l.IsOfficial, &text); err != nil {
			return nil, t.s.classify(op, err)
		}
		e.ExtractedText = text.String
		out = append(out, e)
	}
	return out, t.s.classify(op, rows.Err())
}
