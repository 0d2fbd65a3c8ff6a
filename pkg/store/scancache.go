package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// EnsureScanner returns the id of the named provider, registering it on
// first use.
func (t *Tx) EnsureScanner(ctx context.Context, name string) (int64, error) {
	const op = "store.EnsureScanner"
	if name == "" {
		return 0, errors.E(errors.KindInvalidInput, op, "empty scanner name")
	}

	var id int64
	err := t.get(ctx, op, "SELECT scanner_id FROM scanners WHERE name = ?", []any{name}, &id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	id, err = t.insertID(ctx, op,
		"INSERT INTO scanners (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING scanner_id", name)
	if err == sql.ErrNoRows {
		err = t.get(ctx, op, "SELECT scanner_id FROM scanners WHERE name = ?", []any{name}, &id)
	}
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	return id, nil
}

// Scanners returns every registered provider name, sorted.
func (t *Tx) Scanners(ctx context.Context) ([]string, error) {
	rows, err := t.query(ctx, "store.Scanners", "SELECT name FROM scanners ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, t.s.classify("store.Scanners", err)
		}
		names = append(names, n)
	}
	return names, t.s.classify("store.Scanners", rows.Err())
}

// IsFileDone reports whether the provider already ran on the file.
func (t *Tx) IsFileDone(ctx context.Context, fileID, scannerID int64) (bool, error) {
	n, err := t.count(ctx, "store.IsFileDone",
		"SELECT COUNT(*) FROM files_scans WHERE file_id = ? AND scanner_id = ?", fileID, scannerID)
	return n > 0, err
}

// MarkFilesDone records that the provider ran on each file. Duplicate ids
// and files already marked are skipped. It returns the number of new marks.
func (t *Tx) MarkFilesDone(ctx context.Context, fileIDs []int64, scannerID int64) (int, error) {
	const op = "store.MarkFilesDone"
	ids := dedupeIDs(fileIDs)
	marked := 0
	for _, id := range ids {
		res, err := t.exec(ctx, op,
			`INSERT INTO files_scans (file_id, scanner_id) VALUES (?, ?)
			 ON CONFLICT (file_id, scanner_id) DO NOTHING`, id, scannerID)
		if err != nil {
			return marked, err
		}
		if n, err := res.RowsAffected(); err == nil {
			marked += int(n)
		}
	}
	return marked, nil
}

// IsPackageDone reports whether the provider already ran on the package.
func (t *Tx) IsPackageDone(ctx context.Context, pkgID, scannerID int64) (bool, error) {
	n, err := t.count(ctx, "store.IsPackageDone",
		"SELECT COUNT(*) FROM packages_scans WHERE package_id = ? AND scanner_id = ?", pkgID, scannerID)
	return n > 0, err
}

// MarkPackageDone records that the provider ran on the package.
func (t *Tx) MarkPackageDone(ctx context.Context, pkgID, scannerID int64) error {
	_, err := t.exec(ctx, "store.MarkPackageDone",
		`INSERT INTO packages_scans (package_id, scanner_id) VALUES (?, ?)
		 ON CONFLICT (package_id, scanner_id) DO NOTHING`, pkgID, scannerID)
	return err
}

func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
