package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// packageFilesBatch bounds the rows per multi-row insert so the statement
// stays under the driver's parameter limit.
const packageFilesBatch = 500

const packageColumns = `package_id, name, version, file_name, supplier_id, originator_id,
	download_location, verification_code, sha1, dir_code, home_page, source_info,
	concluded_license_id, declared_license_id, license_comment, copyright_text,
	summary, description, comment, created_at`

func scanPackage(row interface{ Scan(...any) error }) (Package, error) {
	var (
		p       Package
		created string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.FileName, &p.SupplierID, &p.OriginatorID,
		&p.DownloadLocation, &p.VerificationCode, &p.SHA1, &p.DirCode, &p.HomePage, &p.SourceInfo,
		&p.ConcludedLicenseID, &p.DeclaredLicenseID, &p.LicenseComment, &p.CopyrightText,
		&p.Summary, &p.Description, &p.Comment, &created)
	if err != nil {
		return p, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return p, nil
}

func (t *Tx) packageWhere(ctx context.Context, op, where string, args ...any) (Package, bool, error) {
	row := t.tx.QueryRowContext(ctx, t.s.rebind("SELECT "+packageColumns+" FROM packages WHERE "+where), args...)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return Package{}, false, nil
	}
	if err != nil {
		return Package{}, false, t.s.classify(op, err)
	}
	return p, true, nil
}

// PackageBySHA1 returns the archive package with the given digest, or ok=false.
func (t *Tx) PackageBySHA1(ctx context.Context, sha1 string) (Package, bool, error) {
	return t.packageWhere(ctx, "store.PackageBySHA1", "sha1 = ?", sha1)
}

// DirectoryPackage returns the directory package whose dir_code equals the
// given verification code, or ok=false.
func (t *Tx) DirectoryPackage(ctx context.Context, code string) (Package, bool, error) {
	return t.packageWhere(ctx, "store.DirectoryPackage", "verification_code = ? AND dir_code = ?", code, code)
}

// Package returns the package with the given id.
func (t *Tx) Package(ctx context.Context, id int64) (Package, error) {
	p, ok, err := t.packageWhere(ctx, "store.Package", "package_id = ?", id)
	if err != nil {
		return Package{}, err
	}
	if !ok {
		return Package{}, errors.E(errors.KindNotFound, "store.Package", "package not found", errors.ErrNotFound)
	}
	return p, nil
}

// InsertPackageIfAbsent inserts p unless a package with the same identity
// (sha1 for archives, verification code and dir_code for directories)
// exists. Exactly one of p.SHA1 and p.DirCode must be set.
func (t *Tx) InsertPackageIfAbsent(ctx context.Context, p Package) (Package, bool, error) {
	const op = "store.InsertPackageIfAbsent"
	if (p.SHA1 == nil) == (p.DirCode == nil) {
		return Package{}, false, errors.E(errors.KindInvalidInput, op, "exactly one of sha1 and dir_code must be set")
	}

	if existing, ok, err := t.findPackage(ctx, p); err != nil || ok {
		return existing, false, err
	}
	return t.insertPackage(ctx, p)
}

// findPackage looks p up by its identity.
func (t *Tx) findPackage(ctx context.Context, p Package) (Package, bool, error) {
	if p.SHA1 != nil {
		return t.PackageBySHA1(ctx, *p.SHA1)
	}
	return t.packageWhere(ctx, "store.InsertPackageIfAbsent", "verification_code = ? AND dir_code = ?", p.VerificationCode, *p.DirCode)
}

// insertPackage inserts p, resolving a conflict on its identity to the
// stored row.
func (t *Tx) insertPackage(ctx context.Context, p Package) (Package, bool, error) {
	const op = "store.InsertPackageIfAbsent"
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	id, err := t.insertID(ctx, op,
		`INSERT INTO packages (name, version, file_name, supplier_id, originator_id,
			download_location, verification_code, sha1, dir_code, home_page, source_info,
			concluded_license_id, declared_license_id, license_comment, copyright_text,
			summary, description, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING
		 RETURNING package_id`,
		p.Name, p.Version, p.FileName, p.SupplierID, p.OriginatorID,
		p.DownloadLocation, p.VerificationCode, p.SHA1, p.DirCode, p.HomePage, p.SourceInfo,
		p.ConcludedLicenseID, p.DeclaredLicenseID, p.LicenseComment, p.CopyrightText,
		p.Summary, p.Description, p.Comment, p.CreatedAt.Format(time.RFC3339))
	if err == sql.ErrNoRows {
		existing, ok, err := t.findPackage(ctx, p)
		if err != nil {
			return Package{}, false, err
		}
		if !ok {
			return Package{}, false, errors.E(errors.KindConflict, op, "package vanished after conflict")
		}
		return existing, false, nil
	}
	if err != nil {
		return Package{}, false, err
	}
	p.ID = id
	return p, true, nil
}

// InsertPackageFiles records the membership of a package. Rows whose file
// name is already present in the package are skipped. It returns the number
// of rows inserted.
func (t *Tx) InsertPackageFiles(ctx context.Context, pkgID int64, members []PackageFile) (int, error) {
	const op = "store.InsertPackageFiles"
	inserted := 0
	for start := 0; start < len(members); start += packageFilesBatch {
		end := min(start+packageFilesBatch, len(members))
		batch := members[start:end]

		args := make([]any, 0, len(batch)*5)
		for _, m := range batch {
			args = append(args, pkgID, m.FileID, m.ConcludedLicenseID, m.LicenseComment, m.FileName)
		}
		res, err := t.exec(ctx, op,
			`INSERT INTO packages_files (package_id, file_id, concluded_license_id, license_comment, file_name)
			 VALUES `+placeholders(len(batch), 5)+`
			 ON CONFLICT (package_id, file_name) DO NOTHING`, args...)
		if err != nil {
			return inserted, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// PackageFiles returns the membership of a package ordered by file name.
func (t *Tx) PackageFiles(ctx context.Context, pkgID int64) ([]PackageFile, error) {
	const op = "store.PackageFiles"
	rows, err := t.query(ctx, op,
		`SELECT pf.package_file_id, pf.package_id, pf.file_id, pf.file_name,
			pf.concluded_license_id, pf.license_comment, f.sha1
		 FROM packages_files pf JOIN files f ON f.file_id = pf.file_id
		 WHERE pf.package_id = ?
		 ORDER BY pf.file_name`, pkgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PackageFile
	for rows.Next() {
		var pf PackageFile
		if err := rows.Scan(&pf.ID, &pf.PackageID, &pf.FileID, &pf.FileName,
			&pf.ConcludedLicenseID, &pf.LicenseComment, &pf.SHA1); err != nil {
			return nil, t.s.classify(op, err)
		}
		out = append(out, pf)
	}
	return out, t.s.classify(op, rows.Err())
}

// PackageFileIDs returns the distinct file ids of a package's membership.
func (t *Tx) PackageFileIDs(ctx context.Context, pkgID int64) ([]int64, error) {
	const op = "store.PackageFileIDs"
	rows, err := t.query(ctx, op,
		"SELECT DISTINCT file_id FROM packages_files WHERE package_id = ? ORDER BY file_id", pkgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, t.s.classify(op, err)
		}
		ids = append(ids, id)
	}
	return ids, t.s.classify(op, rows.Err())
}

// SetPackageLicenses records the concluded and declared licenses of a package.
func (t *Tx) SetPackageLicenses(ctx context.Context, pkgID int64, concluded, declared *int64) error {
	_, err := t.exec(ctx, "store.SetPackageLicenses",
		"UPDATE packages SET concluded_license_id = ?, declared_license_id = ? WHERE package_id = ?",
		concluded, declared, pkgID)
	return err
}
