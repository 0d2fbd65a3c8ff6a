package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// schema is written for both dialects; {{ID}} and {{REF}} are replaced by
// the driver's surrogate key and reference column types.
const schema = `
CREATE TABLE IF NOT EXISTS properties (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS licenses (
	license_id {{ID}},
	name TEXT,
	short_name TEXT NOT NULL UNIQUE,
	cross_reference TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	is_spdx_official BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS creator_types (
	creator_type_id {{ID}},
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS creators (
	creator_id {{ID}},
	creator_type_id {{REF}} NOT NULL REFERENCES creator_types(creator_type_id),
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	UNIQUE (creator_type_id, name, email)
);

CREATE TABLE IF NOT EXISTS file_types (
	file_type_id {{ID}},
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS files (
	file_id {{ID}},
	file_type_id {{REF}} NOT NULL REFERENCES file_types(file_type_id),
	sha1 TEXT NOT NULL UNIQUE,
	copyright_text TEXT,
	comment TEXT NOT NULL DEFAULT '',
	notice TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS file_contributors (
	file_contributor_id {{ID}},
	file_id {{REF}} NOT NULL REFERENCES files(file_id),
	contributor TEXT NOT NULL,
	UNIQUE (file_id, contributor)
);

CREATE TABLE IF NOT EXISTS packages (
	package_id {{ID}},
	name TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL,
	supplier_id {{REF}} REFERENCES creators(creator_id),
	originator_id {{REF}} REFERENCES creators(creator_id),
	download_location TEXT,
	verification_code TEXT NOT NULL,
	ver_code_excluded_file_id {{REF}} REFERENCES files(file_id),
	sha1 TEXT UNIQUE,
	dir_code TEXT,
	home_page TEXT,
	source_info TEXT NOT NULL DEFAULT '',
	concluded_license_id {{REF}} REFERENCES licenses(license_id),
	declared_license_id {{REF}} REFERENCES licenses(license_id),
	license_comment TEXT NOT NULL DEFAULT '',
	copyright_text TEXT,
	summary TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (verification_code, dir_code),
	CHECK ((sha1 IS NULL) <> (dir_code IS NULL))
);

CREATE TABLE IF NOT EXISTS packages_files (
	package_file_id {{ID}},
	package_id {{REF}} NOT NULL REFERENCES packages(package_id),
	file_id {{REF}} NOT NULL REFERENCES files(file_id),
	concluded_license_id {{REF}} REFERENCES licenses(license_id),
	license_comment TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL,
	UNIQUE (package_id, file_name)
);

CREATE TABLE IF NOT EXISTS document_namespaces (
	document_namespace_id {{ID}},
	uri TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS documents (
	document_id {{ID}},
	document_namespace_id {{REF}} NOT NULL UNIQUE REFERENCES document_namespaces(document_namespace_id),
	data_license_id {{REF}} NOT NULL REFERENCES licenses(license_id),
	spdx_version TEXT NOT NULL,
	name TEXT NOT NULL,
	license_list_version TEXT NOT NULL,
	created_ts TEXT NOT NULL,
	creator_comment TEXT NOT NULL DEFAULT '',
	document_comment TEXT NOT NULL DEFAULT '',
	package_id {{REF}} NOT NULL REFERENCES packages(package_id)
);

CREATE TABLE IF NOT EXISTS documents_creators (
	document_creator_id {{ID}},
	document_id {{REF}} NOT NULL REFERENCES documents(document_id),
	creator_id {{REF}} NOT NULL REFERENCES creators(creator_id),
	UNIQUE (document_id, creator_id)
);

CREATE TABLE IF NOT EXISTS identifiers (
	identifier_id {{ID}},
	document_namespace_id {{REF}} NOT NULL REFERENCES document_namespaces(document_namespace_id),
	id_string TEXT NOT NULL,
	document_id {{REF}} REFERENCES documents(document_id),
	package_id {{REF}} REFERENCES packages(package_id),
	package_file_id {{REF}} REFERENCES packages_files(package_file_id),
	UNIQUE (document_namespace_id, id_string),
	UNIQUE (document_namespace_id, document_id),
	UNIQUE (document_namespace_id, package_id),
	UNIQUE (document_namespace_id, package_file_id),
	CHECK ((CASE WHEN document_id IS NULL THEN 0 ELSE 1 END) +
	       (CASE WHEN package_id IS NULL THEN 0 ELSE 1 END) +
	       (CASE WHEN package_file_id IS NULL THEN 0 ELSE 1 END) = 1)
);

CREATE TABLE IF NOT EXISTS relationship_types (
	relationship_type_id {{ID}},
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS relationships (
	relationship_id {{ID}},
	left_identifier_id {{REF}} NOT NULL REFERENCES identifiers(identifier_id),
	relationship_type_id {{REF}} NOT NULL REFERENCES relationship_types(relationship_type_id),
	right_identifier_id {{REF}} NOT NULL REFERENCES identifiers(identifier_id),
	relationship_comment TEXT NOT NULL DEFAULT '',
	UNIQUE (left_identifier_id, right_identifier_id, relationship_type_id)
);

CREATE TABLE IF NOT EXISTS annotation_types (
	annotation_type_id {{ID}},
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS annotations (
	annotation_id {{ID}},
	document_id {{REF}} NOT NULL REFERENCES documents(document_id),
	annotation_type_id {{REF}} NOT NULL REFERENCES annotation_types(annotation_type_id),
	identifier_id {{REF}} NOT NULL REFERENCES identifiers(identifier_id),
	creator_id {{REF}} NOT NULL REFERENCES creators(creator_id),
	created_ts TEXT NOT NULL,
	comment TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scanners (
	scanner_id {{ID}},
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS files_scans (
	file_scan_id {{ID}},
	file_id {{REF}} NOT NULL REFERENCES files(file_id),
	scanner_id {{REF}} NOT NULL REFERENCES scanners(scanner_id),
	UNIQUE (file_id, scanner_id)
);

CREATE TABLE IF NOT EXISTS packages_scans (
	package_scan_id {{ID}},
	package_id {{REF}} NOT NULL REFERENCES packages(package_id),
	scanner_id {{REF}} NOT NULL REFERENCES scanners(scanner_id),
	UNIQUE (package_id, scanner_id)
);

CREATE TABLE IF NOT EXISTS files_licenses (
	file_license_id {{ID}},
	file_id {{REF}} NOT NULL REFERENCES files(file_id),
	license_id {{REF}} NOT NULL REFERENCES licenses(license_id),
	extracted_text TEXT NOT NULL DEFAULT '',
	UNIQUE (file_id, license_id)
);

CREATE INDEX IF NOT EXISTS idx_packages_files_file ON packages_files(file_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_package_file ON identifiers(package_file_id);
CREATE INDEX IF NOT EXISTS idx_relationships_right ON relationships(right_identifier_id);
CREATE INDEX IF NOT EXISTS idx_files_licenses_license ON files_licenses(license_id);
CREATE INDEX IF NOT EXISTS idx_documents_package ON documents(package_id);
`

// Tables lists every table, parents first.
var Tables = []string{
	"properties",
	"licenses",
	"creator_types",
	"creators",
	"file_types",
	"files",
	"file_contributors",
	"packages",
	"packages_files",
	"document_namespaces",
	"documents",
	"documents_creators",
	"identifiers",
	"relationship_types",
	"relationships",
	"annotation_types",
	"annotations",
	"scanners",
	"files_scans",
	"packages_scans",
	"files_licenses",
}

// Seed data.
var (
	CreatorTypes    = []string{CreatorPerson, CreatorOrganization, CreatorTool}
	AnnotationTypes = []string{AnnotationReview, AnnotationOther}
)

// Property keys.
const (
	PropDefaultCreator     = "default_creator_id"
	PropLicenseListVersion = "license_list_version"
)

// DataLicense is the license every document's metadata is released under.
var DataLicense = CatalogEntry{
	ShortName: "CC0-1.0",
	Name:      "Creative Commons Zero v1.0 Universal",
	URL:       "https://spdx.org/licenses/CC0-1.0.html",
}

// InitOptions controls the seed data written by Init.
type InitOptions struct {
	// FileTypes and RelationshipTypes are seeded as lookup rows.
	FileTypes         []string
	RelationshipTypes []string

	// DefaultCreator is credited on every new document.
	DefaultCreator Creator
}

func (s *Store) ddl() string {
	id, ref := "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER"
	if s.driver == DriverPostgres {
		id, ref = "BIGSERIAL PRIMARY KEY", "BIGINT"
	}
	return strings.NewReplacer("{{ID}}", id, "{{REF}}", ref).Replace(schema)
}

// Init creates the schema if needed and writes seed rows. It is safe to
// call on an initialized database.
func (s *Store) Init(ctx context.Context, opts InitOptions) error {
	for _, stmt := range splitStatements(s.ddl()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", s.classify("store.Init", err))
		}
	}

	return s.WithTx(ctx, func(tx *Tx) error {
		seeds := map[string][]string{
			"creator_types":      CreatorTypes,
			"annotation_types":   AnnotationTypes,
			"file_types":         opts.FileTypes,
			"relationship_types": opts.RelationshipTypes,
		}
		for _, table := range []string{"creator_types", "annotation_types", "file_types", "relationship_types"} {
			for _, name := range seeds[table] {
				q := "INSERT INTO " + table + " (name) VALUES (?) ON CONFLICT (name) DO NOTHING"
				if _, err := tx.exec(ctx, "store.Init", q, name); err != nil {
					return fmt.Errorf("seed %s: %w", table, err)
				}
			}
		}

		if err := tx.ImportLicenses(ctx, []CatalogEntry{DataLicense}); err != nil {
			return err
		}

		creator := opts.DefaultCreator
		if creator.Name == "" {
			return nil
		}
		if creator.Type == "" {
			creator.Type = CreatorTool
		}
		c, err := tx.EnsureCreator(ctx, creator)
		if err != nil {
			return err
		}
		return tx.SetProperty(ctx, PropDefaultCreator, strconv.FormatInt(c.ID, 10))
	})
}

// Drop removes every table. Used when re-initializing a database.
func (s *Store) Drop(ctx context.Context) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i]); err != nil {
			return s.classify("store.Drop", err)
		}
	}
	s.license.Purge()
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// =============================================================================
// Properties
// =============================================================================

// SetProperty stores a key/value setting.
func (t *Tx) SetProperty(ctx context.Context, key, value string) error {
	_, err := t.exec(ctx, "store.SetProperty",
		`INSERT INTO properties (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Property returns a stored setting, or ok=false when it is not set.
func (t *Tx) Property(ctx context.Context, key string) (value string, ok bool, err error) {
	err = t.get(ctx, "store.Property", "SELECT value FROM properties WHERE key = ?", []any{key}, &value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
