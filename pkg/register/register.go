// Package register adds files and packages to the entity store.
//
// Registration is content addressed and idempotent: registering the same
// directory contents or the same archive twice yields the same package row.
// Archives are extracted to a temporary directory so their members can be
// digested and scanned; the caller releases it with Result.Close.
package register

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/exploopio/sbomkit/pkg/archive"
	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/digest"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/filetype"
	"github.com/exploopio/sbomkit/pkg/metrics"
	"github.com/exploopio/sbomkit/pkg/store"
)

// Hints supply package metadata that cannot be derived from content.
type Hints struct {
	Name    string
	Version string
	Comment string
}

// Member is one registered file of a package.
type Member struct {
	digest.Member
	FileID int64
}

// Result is the outcome of registering a package.
type Result struct {
	Package store.Package

	// Files are the package members, sorted by RelPath.
	Files []Member

	// Created is true when this call inserted the package row.
	Created bool

	// Root is the directory the members live under: the package itself for
	// directories, a temporary extraction for archives.
	Root string

	cleanup func()
}

// Close releases the temporary extraction of an archive package.
func (r *Result) Close() {
	if r != nil && r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// Options configures a Registrar.
type Options struct {
	Logger  core.Logger
	Metrics metrics.Collector
}

// Registrar registers files and packages.
type Registrar struct {
	store   *store.Store
	logger  core.Logger
	metrics metrics.Collector
}

// New creates a Registrar backed by s.
func New(s *store.Store, opts Options) *Registrar {
	return &Registrar{
		store:   s,
		logger:  core.LoggerOrDefault(opts.Logger),
		metrics: metrics.OrDefault(opts.Metrics),
	}
}

// RegisterFile adds a single file, keyed by its SHA-1. A non-empty knownSHA1
// skips hashing. An existing file is returned unchanged and its content is
// not read again.
func (r *Registrar) RegisterFile(ctx context.Context, path, knownSHA1 string) (*store.File, error) {
	sum := knownSHA1
	if sum == "" {
		var err error
		if sum, err = digest.File(path); err != nil {
			return nil, err
		}
	}
	known, err := r.knownFiles(ctx, []string{sum})
	if err != nil {
		return nil, err
	}
	if f, ok := known[sum]; ok {
		return &f, nil
	}
	typ, err := filetype.Detect(path)
	if err != nil {
		return nil, err
	}

	var (
		f       store.File
		created bool
	)
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		f, created, err = tx.InsertFileIfAbsent(ctx, store.File{SHA1: sum, Type: string(typ)})
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.CounterInc(metrics.FilesRegistered.Name)
	}
	return &f, nil
}

// RegisterPackage adds a directory or archive and its membership. For an
// archive the returned Result must be closed.
func (r *Registrar) RegisterPackage(ctx context.Context, path string, hints Hints) (*Result, error) {
	const op = "register.RegisterPackage"
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, op, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.E(errors.KindContent, op, err)
	}

	if info.IsDir() {
		name := hints.Name
		if name == "" {
			name = filepath.Base(abs)
		}
		res, err := r.registerTree(ctx, abs, store.Package{
			Name:     name,
			Version:  hints.Version,
			FileName: filepath.Base(abs),
			Comment:  hints.Comment,
		})
		if err != nil {
			return nil, err
		}
		r.logger.Info("%s: package_id: %d", path, res.Package.ID)
		return res, nil
	}

	if !archive.IsArchive(abs) {
		return nil, errors.E(errors.KindContent, op, abs+" is neither a directory nor a supported archive")
	}
	sum, err := digest.File(abs)
	if err != nil {
		return nil, err
	}
	dir, cleanup, err := archive.TempExtract(ctx, abs)
	if err != nil {
		return nil, err
	}

	name := hints.Name
	if name == "" {
		name = FriendlyName(filepath.Base(abs))
	}
	res, err := r.registerTree(ctx, dir, store.Package{
		Name:     name,
		Version:  hints.Version,
		FileName: filepath.Base(abs),
		SHA1:     &sum,
		Comment:  hints.Comment,
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	res.cleanup = cleanup
	r.logger.Info("%s: package_id: %d", path, res.Package.ID)
	return res, nil
}

// registerTree digests root and stores p with its membership in one
// transaction. p.SHA1 set means an archive; otherwise the verification code
// doubles as the directory identity.
func (r *Registrar) registerTree(ctx context.Context, root string, p store.Package) (*Result, error) {
	tree, err := digest.Directory(root, nil)
	if err != nil {
		return nil, err
	}
	p.VerificationCode = tree.VerificationCode
	kind := "archive"
	if p.SHA1 == nil {
		code := tree.VerificationCode
		p.DirCode = &code
		kind = "directory"
	}

	sums := make([]string, len(tree.Files))
	for i, m := range tree.Files {
		sums[i] = m.SHA1
	}
	known, err := r.knownFiles(ctx, sums)
	if err != nil {
		return nil, err
	}

	// Only new content is classified, before the transaction opens.
	types := make(map[string]filetype.Type, len(tree.Files))
	for _, m := range tree.Files {
		if _, ok := known[m.SHA1]; ok {
			continue
		}
		if _, ok := types[m.SHA1]; ok {
			continue
		}
		t, err := filetype.Detect(m.Path)
		if err != nil {
			return nil, err
		}
		types[m.SHA1] = t
	}

	res := &Result{Root: root, Files: make([]Member, len(tree.Files))}
	newFiles := 0
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		pkg, created, err := tx.InsertPackageIfAbsent(ctx, p)
		if err != nil {
			return err
		}
		res.Package, res.Created = pkg, created

		newFiles = 0
		rows := make([]store.PackageFile, len(tree.Files))
		for i, m := range tree.Files {
			f, fileCreated, err := tx.InsertFileIfAbsent(ctx, store.File{SHA1: m.SHA1, Type: string(types[m.SHA1])})
			if err != nil {
				return err
			}
			if fileCreated {
				newFiles++
			}
			res.Files[i] = Member{Member: m, FileID: f.ID}
			rows[i] = store.PackageFile{FileID: f.ID, FileName: m.RelPath}
		}

		if created {
			if _, err := tx.InsertPackageFiles(ctx, pkg.ID, rows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.CounterAdd(metrics.FilesRegistered.Name, float64(newFiles))
	if res.Created {
		r.metrics.CounterInc(metrics.PackagesRegistered.Name, "kind", kind)
	}
	return res, nil
}

// SetPackageLicenses records the concluded and declared licenses of a
// package by short name. An empty name clears the field; an unknown name is
// added as a non-official license.
func (r *Registrar) SetPackageLicenses(ctx context.Context, pkgID int64, concluded, declared string) error {
	const op = "register.SetPackageLicenses"
	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Package(ctx, pkgID); err != nil {
			return errors.Wrap(err, op)
		}
		resolve := func(name string) (*int64, error) {
			if strings.TrimSpace(name) == "" {
				return nil, nil
			}
			l, err := tx.LookupOrCreateLicense(ctx, name, "set on package")
			if err != nil {
				return nil, err
			}
			return &l.ID, nil
		}
		c, err := resolve(concluded)
		if err != nil {
			return errors.Wrap(err, op)
		}
		d, err := resolve(declared)
		if err != nil {
			return errors.Wrap(err, op)
		}
		return tx.SetPackageLicenses(ctx, pkgID, c, d)
	})
}

// AddContributors registers the file at path and records contributors for
// it. Names already recorded are skipped.
func (r *Registrar) AddContributors(ctx context.Context, path string, contributors []string) (*store.File, error) {
	f, err := r.RegisterFile(ctx, path, "")
	if err != nil {
		return nil, err
	}
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, c := range contributors {
			if c = strings.TrimSpace(c); c == "" {
				continue
			}
			if err := tx.AddFileContributor(ctx, f.ID, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "register.AddContributors")
	}
	return f, nil
}

// knownFiles returns the stored files among the given digests.
func (r *Registrar) knownFiles(ctx context.Context, sums []string) (map[string]store.File, error) {
	known := make(map[string]store.File)
	err := r.store.WithReadTx(ctx, func(tx *store.Tx) error {
		for _, sum := range sums {
			if _, ok := known[sum]; ok {
				continue
			}
			f, ok, err := tx.FileBySHA1(ctx, sum)
			if err != nil {
				return err
			}
			if ok {
				known[sum] = f
			}
		}
		return nil
	})
	return known, err
}

// FriendlyName derives a package name from an archive file name by
// stripping its extension, twice for compressed tarballs.
func FriendlyName(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if strings.HasSuffix(name, ".tar") {
		name = strings.TrimSuffix(name, ".tar")
	}
	return name
}
