package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

var shortNameReplacer = strings.NewReplacer(
	"(", "-", ")", "-",
	"[", "-", "]", "-",
	"<", "-", ">", "-",
)

// NormalizeShortName maps each of ()[]<> to '-'. Found license names are
// stored and looked up in this form only.
func NormalizeShortName(name string) string {
	return shortNameReplacer.Replace(strings.TrimSpace(name))
}

const licenseColumns = `license_id, name, short_name, cross_reference, comment, is_spdx_official`

func scanLicense(row interface{ Scan(...any) error }) (License, error) {
	var l License
	err := row.Scan(&l.ID, &l.Name, &l.ShortName, &l.CrossReference, &l.Comment, &l.IsOfficial)
	return l, err
}

// LicenseByShortName returns the license with the given normalized short
// name, or ok=false.
func (t *Tx) LicenseByShortName(ctx context.Context, short string) (License, bool, error) {
	if l, ok := t.pending[short]; ok {
		return l, true, nil
	}
	if l, ok := t.s.license.Get(short); ok {
		return l, true, nil
	}

	row := t.tx.QueryRowContext(ctx, t.s.rebind("SELECT "+licenseColumns+" FROM licenses WHERE short_name = ?"), short)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return License{}, false, nil
	}
	if err != nil {
		return License{}, false, t.s.classify("store.LicenseByShortName", err)
	}
	t.pending[short] = l
	return l, true, nil
}

// License returns the license with the given id.
func (t *Tx) License(ctx context.Context, id int64) (License, error) {
	row := t.tx.QueryRowContext(ctx, t.s.rebind("SELECT "+licenseColumns+" FROM licenses WHERE license_id = ?"), id)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return License{}, errors.E(errors.KindNotFound, "store.License", "license not found", errors.ErrNotFound)
	}
	if err != nil {
		return License{}, t.s.classify("store.License", err)
	}
	return l, nil
}

// LookupOrCreateLicense resolves a short name to a license row, creating a
// non-official license with the given comment when none exists. Calling it
// twice with the same name returns the same id and adds no rows.
func (t *Tx) LookupOrCreateLicense(ctx context.Context, shortName, comment string) (License, error) {
	const op = "store.LookupOrCreateLicense"
	short := NormalizeShortName(shortName)
	if short == "" {
		return License{}, errors.E(errors.KindInvalidInput, op, "empty license short name")
	}

	if l, ok, err := t.LicenseByShortName(ctx, short); err != nil || ok {
		return l, err
	}
	return t.insertLicense(ctx, short, comment)
}

// insertLicense inserts a found license, resolving a conflict on its short
// name to the stored row.
func (t *Tx) insertLicense(ctx context.Context, short, comment string) (License, error) {
	const op = "store.LookupOrCreateLicense"
	id, err := t.insertID(ctx, op,
		`INSERT INTO licenses (name, short_name, cross_reference, comment, is_spdx_official)
		 VALUES (NULL, ?, '', ?, ?)
		 ON CONFLICT (short_name) DO NOTHING
		 RETURNING license_id`, short, comment, false)
	if err == sql.ErrNoRows {
		l, ok, err := t.LicenseByShortName(ctx, short)
		if err != nil {
			return License{}, err
		}
		if !ok {
			return License{}, errors.E(errors.KindConflict, op, "license "+short+" vanished after conflict")
		}
		return l, nil
	}
	if err != nil {
		return License{}, err
	}

	l := License{ID: id, ShortName: short, Comment: comment}
	t.pending[short] = l
	return l, nil
}

// MergeFindings associates the licenses found by a provider with a file.
// Pairs already recorded are left alone, so merging the same findings again
// adds nothing. It returns the number of new associations.
func (t *Tx) MergeFindings(ctx context.Context, fileID int64, findings []core.Finding, provider string) (int, error) {
	const op = "store.MergeFindings"
	if len(findings) == 0 {
		return 0, nil
	}

	existing, err := t.fileLicenseIDs(ctx, fileID)
	if err != nil {
		return 0, err
	}

	added := 0
	comment := "found by " + provider
	for _, f := range findings {
		lic, err := t.LookupOrCreateLicense(ctx, f.ShortName, comment)
		if err != nil {
			return added, errors.Wrap(err, op)
		}
		if _, ok := existing[lic.ID]; ok {
			continue
		}
		existing[lic.ID] = struct{}{}

		text := ""
		if f.Evidence != nil {
			text = *f.Evidence
		}
		if _, err := t.exec(ctx, op,
			"INSERT INTO files_licenses (file_id, license_id, extracted_text) VALUES (?, ?, ?)",
			fileID, lic.ID, text); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (t *Tx) fileLicenseIDs(ctx context.Context, fileID int64) (map[int64]struct{}, error) {
	rows, err := t.query(ctx, "store.fileLicenseIDs",
		"SELECT license_id FROM files_licenses WHERE file_id = ?", fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, t.s.classify("store.fileLicenseIDs", err)
		}
		ids[id] = struct{}{}
	}
	return ids, t.s.classify("store.fileLicenseIDs", rows.Err())
}

// ImportLicenses upserts official catalog licenses. A license first created
// from a finding becomes official once the catalog names it.
func (t *Tx) ImportLicenses(ctx context.Context, entries []CatalogEntry) error {
	const op = "store.ImportLicenses"
	for _, e := range entries {
		short := NormalizeShortName(e.ShortName)
		if short == "" {
			continue
		}
		if _, err := t.exec(ctx, op,
			`INSERT INTO licenses (name, short_name, cross_reference, comment, is_spdx_official)
			 VALUES (?, ?, ?, '', ?)
			 ON CONFLICT (short_name) DO UPDATE SET
				name = excluded.name,
				cross_reference = excluded.cross_reference,
				is_spdx_official = excluded.is_spdx_official`,
			e.Name, short, e.URL, true); err != nil {
			return err
		}
		delete(t.pending, short)
		t.s.license.Remove(short)
	}
	return nil
}

// FileLicenses returns the license associations of a file ordered by license
// short name.
func (t *Tx) FileLicenses(ctx context.Context, fileID int64) ([]FileLicense, error) {
	const op = "store.FileLicenses"
	rows, err := t.query(ctx, op,
		`SELECT fl.file_id, fl.license_id, fl.extracted_text
		 FROM files_licenses fl JOIN licenses l ON l.license_id = fl.license_id
		 WHERE fl.file_id = ?
		 ORDER BY l.short_name`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileLicense
	for rows.Next() {
		var fl FileLicense
		if err := rows.Scan(&fl.FileID, &fl.LicenseID, &fl.ExtractedText); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, fl)
	}
	return out, t.s.classify(op, rows.Err())
}
