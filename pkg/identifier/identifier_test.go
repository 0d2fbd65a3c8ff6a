package identifier

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/mocks"
	"github.com/exploopio/sbomkit/pkg/register"
	"github.com/exploopio/sbomkit/pkg/store"
)

func TestGenerate(t *testing.T) {
	id := Generate(KindFile, "src/main.c", "da39a3ee5e6b4b0d3255bfef95601890afd80709")
	assert.Regexp(t, `^SPDXRef-file-main_c-da39-[0-9a-f]{8}$`, id)

	long := Generate(KindPackage, "a-very-long-package-name-1.2.3.tar.gz", "abcd")
	assert.Regexp(t, `^SPDXRef-package-a_very_long_package_-abcd-[0-9a-f]{8}$`, long)

	bare := Generate(KindFile, "", "")
	assert.Regexp(t, `^SPDXRef-file-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{8}$`, bare)

	assert.NotEqual(t, Generate(KindFile, "x", "abcd"), Generate(KindFile, "x", "abcd"))
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"main.c":                    "main_c",
		"dir/sub/file-name.txt":     "file_name_txt",
		`win\path\a b.txt`:          "a_b_txt",
		"abcdefghijklmnopqrstuvwxy": "abcdefghijklmnopqrst",
		"ümlaut":                    "_mlaut",
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), in)
	}
}

type fixture struct {
	store *store.Store
	nsID  int64
	docID int64
	pkgID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := mocks.NewStore(t)

	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0o644))
	}
	res, err := register.New(s, register.Options{Logger: &core.NopLogger{}}).
		RegisterPackage(ctx, root, register.Hints{Name: "widget"})
	require.NoError(t, err)

	f := &fixture{store: s, pkgID: res.Package.ID}
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		ns, err := tx.InsertNamespace(ctx, "https://example.com/widget-1")
		if err != nil {
			return err
		}
		cc0, _, err := tx.LicenseByShortName(ctx, store.DataLicense.ShortName)
		if err != nil {
			return err
		}
		doc, err := tx.InsertDocument(ctx, store.Document{
			NamespaceID:   ns.ID,
			DataLicenseID: cc0.ID,
			SPDXVersion:   "SPDX-2.0",
			Name:          "widget",
			PackageID:     res.Package.ID,
		})
		f.nsID, f.docID = ns.ID, doc.ID
		return err
	}))
	return f
}

func TestAssignPackage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := NewAssigner(nil)

	require.NoError(t, f.store.WithTx(ctx, func(tx *store.Tx) error {
		docIdent, err := a.Assign(ctx, tx, f.nsID, Target{DocumentID: f.docID})
		require.NoError(t, err)
		assert.Equal(t, DocumentIDString, docIdent.IDString)

		pkgIdent, err := a.AssignPackage(ctx, tx, f.nsID, f.pkgID)
		require.NoError(t, err)
		assert.Regexp(t, `^SPDXRef-package-`, pkgIdent.IDString)

		members, err := tx.PackageFiles(ctx, f.pkgID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		seen := map[string]bool{pkgIdent.IDString: true}
		for _, m := range members {
			ident, ok, err := tx.PackageFileIdentifier(ctx, f.nsID, m.ID)
			require.NoError(t, err)
			require.True(t, ok, m.FileName)
			assert.Regexp(t, regexp.MustCompile(`^SPDXRef-file-[ab]_txt-`+m.SHA1[:4]+`-`), ident.IDString)
			assert.False(t, seen[ident.IDString])
			seen[ident.IDString] = true
		}
		return nil
	}))

	st, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Identifiers)
}

func TestAssign_DuplicateIDString(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := NewAssigner(func(kind, name, sha1 string) string { return "SPDXRef-fixed" })

	err := f.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := a.AssignPackage(ctx, tx, f.nsID, f.pkgID)
		return err
	})
	assert.True(t, errors.IsConstraintError(err))

	st, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Identifiers)
}

func TestAssign_TargetTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := NewAssigner(nil)

	err := f.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := a.Assign(ctx, tx, f.nsID, Target{PackageID: f.pkgID, Name: "widget"}); err != nil {
			return err
		}
		_, err := a.Assign(ctx, tx, f.nsID, Target{PackageID: f.pkgID, Name: "widget"})
		return err
	})
	assert.True(t, errors.IsConstraintError(err))
}

func TestAssign_NoTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := NewAssigner(nil).Assign(ctx, tx, f.nsID, Target{Name: "orphan"})
		return err
	})
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))
}
