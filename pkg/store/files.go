package store

import (
	"context"
	"database/sql"

	"github.com/exploopio/sbomkit/pkg/errors"
)

const fileColumns = `f.file_id, f.sha1, ft.name, f.copyright_text, f.comment, f.notice`

const fileFrom = ` FROM files f JOIN file_types ft ON ft.file_type_id = f.file_type_id`

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var f File
	err := row.Scan(&f.ID, &f.SHA1, &f.Type, &f.CopyrightText, &f.Comment, &f.Notice)
	return f, err
}

// FileBySHA1 returns the file with the given digest, or ok=false.
func (t *Tx) FileBySHA1(ctx context.Context, sha1 string) (File, bool, error) {
	row := t.tx.QueryRowContext(ctx, t.s.rebind("SELECT "+fileColumns+fileFrom+" WHERE f.sha1 = ?"), sha1)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, t.s.classify("store.FileBySHA1", err)
	}
	return f, true, nil
}

// File returns the file with the given id.
func (t *Tx) File(ctx context.Context, id int64) (File, error) {
	row := t.tx.QueryRowContext(ctx, t.s.rebind("SELECT "+fileColumns+fileFrom+" WHERE f.file_id = ?"), id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, errors.E(errors.KindNotFound, "store.File", "file not found", errors.ErrNotFound)
	}
	if err != nil {
		return File{}, t.s.classify("store.File", err)
	}
	return f, nil
}

// InsertFileIfAbsent inserts f unless a file with the same SHA-1 exists.
// It returns the stored row and whether this call created it. A concurrent
// insert of the same digest resolves to the row that won.
func (t *Tx) InsertFileIfAbsent(ctx context.Context, f File) (File, bool, error) {
	const op = "store.InsertFileIfAbsent"
	if f.SHA1 == "" {
		return File{}, false, errors.E(errors.KindInvalidInput, op, "file sha1 is required")
	}

	if existing, ok, err := t.FileBySHA1(ctx, f.SHA1); err != nil || ok {
		return existing, false, err
	}
	return t.insertFile(ctx, f)
}

// insertFile inserts f, resolving a conflict on its digest to the stored row.
func (t *Tx) insertFile(ctx context.Context, f File) (File, bool, error) {
	const op = "store.InsertFileIfAbsent"
	typeID, err := t.lookupID(ctx, "file_types", "file_type_id", f.Type)
	if err != nil {
		return File{}, false, errors.Wrap(err, op)
	}

	id, err := t.insertID(ctx, op,
		`INSERT INTO files (file_type_id, sha1, copyright_text, comment, notice)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (sha1) DO NOTHING
		 RETURNING file_id`,
		typeID, f.SHA1, f.CopyrightText, f.Comment, f.Notice)
	if err == sql.ErrNoRows {
		existing, ok, err := t.FileBySHA1(ctx, f.SHA1)
		if err != nil {
			return File{}, false, err
		}
		if !ok {
			return File{}, false, errors.E(errors.KindConflict, op, "file "+f.SHA1+" vanished after conflict")
		}
		return existing, false, nil
	}
	if err != nil {
		return File{}, false, err
	}
	f.ID = id
	return f, true, nil
}

// FileContributors returns the contributors recorded for a file, sorted.
func (t *Tx) FileContributors(ctx context.Context, fileID int64) ([]string, error) {
	rows, err := t.query(ctx, "store.FileContributors",
		"SELECT contributor FROM file_contributors WHERE file_id = ? ORDER BY contributor", fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, t.s.classify("store.FileContributors", err)
		}
		out = append(out, c)
	}
	return out, t.s.classify("store.FileContributors", rows.Err())
}

// AddFileContributor records a contributor for a file. Adding the same
// contributor twice is a no-op.
func (t *Tx) AddFileContributor(ctx context.Context, fileID int64, contributor string) error {
	_, err := t.exec(ctx, "store.AddFileContributor",
		`INSERT INTO file_contributors (file_id, contributor) VALUES (?, ?)
		 ON CONFLICT (file_id, contributor) DO NOTHING`, fileID, contributor)
	return err
}

// lookupID resolves a name in one of the seeded lookup tables.
func (t *Tx) lookupID(ctx context.Context, table, column, name string) (int64, error) {
	var id int64
	err := t.get(ctx, "store.lookup", "SELECT "+column+" FROM "+table+" WHERE name = ?", []any{name}, &id)
	if err == sql.ErrNoRows {
		return 0, errors.E(errors.KindInvalidInput, "store.lookup", table+": unknown name "+name)
	}
	return id, err
}
