package document_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/document"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/identifier"
	"github.com/exploopio/sbomkit/pkg/metrics"
	"github.com/exploopio/sbomkit/pkg/mocks"
	"github.com/exploopio/sbomkit/pkg/providers"
	"github.com/exploopio/sbomkit/pkg/register"
	"github.com/exploopio/sbomkit/pkg/relationship"
	"github.com/exploopio/sbomkit/pkg/scan"
	"github.com/exploopio/sbomkit/pkg/store"
)

const prefix = "sqlite://test.db"

type fixture struct {
	store   *store.Store
	pkg     *register.Result
	metrics *metrics.InMemoryCollector
	creator *document.Creator
	asm     *document.Assembler
}

// newFixture registers a directory with a.txt and b.txt and scans it with
// a provider that finds licenses[rel] in each file.
func newFixture(t *testing.T, licenses map[string][]core.Finding) *fixture {
	t.Helper()
	ctx := context.Background()
	s := mocks.NewStore(t)
	m := metrics.NewInMemoryCollector()

	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.ImportLicenses(ctx, []store.CatalogEntry{{ShortName: "MIT", Name: "MIT License"}})
	}))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("Permission is hereby granted\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("nothing to see\n"), 0o644))
	res, err := register.New(s, register.Options{Logger: &core.NopLogger{}, Metrics: m}).
		RegisterPackage(ctx, root, register.Hints{Name: "widget", Version: "1.0"})
	require.NoError(t, err)

	stub := &mocks.MockProvider{
		NameVal: "stub",
		InvokeFn: func(ctx context.Context, target core.Target) (*core.Result, error) {
			return &core.Result{Findings: licenses[target.RelPath]}, nil
		},
	}
	reg := providers.NewRegistry()
	reg.Register(stub)
	_, err = scan.New(s, reg, scan.Options{Logger: &core.NopLogger{}, Metrics: m}).
		Run(ctx, res.Package.ID, res.Root, []string{"stub"})
	require.NoError(t, err)

	return &fixture{
		store:   s,
		pkg:     res,
		metrics: m,
		creator: document.NewCreator(s, document.Config{
			NamespacePrefix: prefix + "/",
			Logger:          &core.NopLogger{},
			Metrics:         m,
		}),
		asm: document.NewAssembler(s),
	}
}

func (f *fixture) create(t *testing.T, opts document.Options) *document.Created {
	t.Helper()
	created, err := f.creator.Create(context.Background(), f.pkg.Package.ID, opts)
	require.NoError(t, err)
	return created
}

func (f *fixture) assemble(t *testing.T, docID int64) *document.Document {
	t.Helper()
	doc, err := f.asm.Assemble(context.Background(), docID)
	require.NoError(t, err)
	return doc
}

func (f *fixture) stats(t *testing.T) *store.Stats {
	t.Helper()
	st, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	return st
}

func countEdges(rels []document.Relationship, typ, right string) int {
	n := 0
	for _, r := range rels {
		if r.Type == typ && r.Right == right {
			n++
		}
	}
	return n
}

func TestEndToEnd_TwoFiles(t *testing.T) {
	f := newFixture(t, map[string][]core.Finding{
		"a.txt": {{ShortName: "MIT"}},
	})
	created := f.create(t, document.Options{Comment: "nightly"})
	assert.Regexp(t, `^sqlite://test\.db/widget-[0-9a-f-]{36}$`, created.Namespace)
	assert.Equal(t, float64(1), f.metrics.GetCounter(metrics.DocumentsCreated.Name))

	doc := f.assemble(t, created.DocumentID)
	assert.Equal(t, "SPDX-2.0", doc.SPDXVersion)
	assert.Equal(t, "CC0-1.0", doc.DataLicense)
	assert.Equal(t, "SPDXRef-DOCUMENT", doc.IDString)
	assert.Equal(t, "widget", doc.Name)
	assert.Equal(t, created.Namespace, doc.Namespace)
	assert.Equal(t, document.DefaultLicenseListVersion, doc.LicenseListVersion)
	assert.Equal(t, "nightly", doc.DocumentComment)
	assert.Equal(t, []string{"Tool: sbomkit-test"}, doc.Creators)
	assert.False(t, doc.Created.IsZero())

	pkg := doc.Package
	assert.Equal(t, "widget", pkg.Name)
	assert.Equal(t, "1.0", pkg.Version)
	assert.Equal(t, f.pkg.Package.VerificationCode, pkg.VerificationCode)
	assert.Empty(t, pkg.Checksum, "directory packages have no checksum")
	assert.Equal(t, document.NoAssertion, pkg.Supplier)
	assert.Equal(t, document.NoAssertion, pkg.DownloadLocation)
	assert.Equal(t, document.NoAssertion, pkg.LicenseConcluded)
	assert.Equal(t, document.NoAssertion, pkg.CopyrightText)
	assert.Equal(t, []document.LicenseCount{{License: "MIT", Count: 1}}, pkg.LicenseInfoFromFiles)

	require.Len(t, pkg.Files, 2)
	a, b := pkg.Files[0], pkg.Files[1]
	assert.Equal(t, "a.txt", a.Name)
	assert.Equal(t, "b.txt", b.Name)
	assert.Equal(t, []string{"MIT"}, a.LicenseInfo)
	assert.True(t, a.HasFindings())
	assert.Equal(t, []string{document.NoAssertion}, b.LicenseInfo)
	assert.False(t, b.HasFindings())
	assert.Len(t, a.Checksum, 40)
	assert.Equal(t, document.NoAssertion, a.LicenseConcluded)

	assert.Equal(t, 1, countEdges(doc.Relationships, relationship.Describes, pkg.IDString))
	assert.Equal(t, 1, countEdges(doc.Relationships, relationship.Describes, a.IDString))
	assert.Equal(t, 1, countEdges(doc.Relationships, relationship.Describes, b.IDString))
	assert.Len(t, doc.Relationships, 3)

	assert.Equal(t, 1, countEdges(pkg.Relationships, relationship.Contains, a.IDString))
	assert.Equal(t, 1, countEdges(pkg.Relationships, relationship.Contains, b.IDString))
	assert.Equal(t, 1, countEdges(pkg.Relationships, relationship.DescribedBy, doc.IDString))
	assert.Len(t, pkg.Relationships, 3)

	for _, file := range pkg.Files {
		assert.Equal(t, 1, countEdges(file.Relationships, relationship.ContainedBy, pkg.IDString), file.Name)
		assert.Equal(t, 1, countEdges(file.Relationships, relationship.DescribedBy, doc.IDString), file.Name)
		assert.Len(t, file.Relationships, 2, file.Name)
	}

	assert.Empty(t, doc.ExtractedLicenses)
}

func TestCreate_SecondDocumentIsIndependent(t *testing.T) {
	f := newFixture(t, map[string][]core.Finding{
		"a.txt": {{ShortName: "MIT"}},
	})
	first := f.create(t, document.Options{})
	before := f.stats(t)

	second := f.create(t, document.Options{})
	after := f.stats(t)

	assert.NotEqual(t, first.DocumentID, second.DocumentID)
	assert.NotEqual(t, first.Namespace, second.Namespace)

	assert.Equal(t, before.Files, after.Files)
	assert.Equal(t, before.Packages, after.Packages)
	assert.Equal(t, before.PackageFiles, after.PackageFiles)
	assert.Equal(t, before.Licenses, after.Licenses)
	assert.Equal(t, before.FileLicenses, after.FileLicenses)

	assert.Equal(t, before.Documents+1, after.Documents)
	assert.Equal(t, before.Namespaces+1, after.Namespaces)
	assert.Equal(t, before.Identifiers+4, after.Identifiers)
	assert.Equal(t, before.Relationships+10, after.Relationships)

	d1 := f.assemble(t, first.DocumentID)
	d2 := f.assemble(t, second.DocumentID)
	assert.NotEqual(t, d1.Package.IDString, d2.Package.IDString)
}

func TestCreate_Options(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetProperty(ctx, store.PropLicenseListVersion, "3.24")
	}))

	created := f.create(t, document.Options{Name: "custom", CreatorComment: "made in tests"})
	doc := f.assemble(t, created.DocumentID)
	assert.Equal(t, "custom", doc.Name)
	assert.Equal(t, "made in tests", doc.CreatorComment)
	assert.Equal(t, "3.24", doc.LicenseListVersion)
	assert.Equal(t, []document.LicenseCount{{License: document.NoAssertion}}, doc.Package.LicenseInfoFromFiles)
}

func TestCreate_UnknownPackage(t *testing.T) {
	f := newFixture(t, nil)
	before := f.stats(t)

	_, err := f.creator.Create(context.Background(), 9999, document.Options{})
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, before.Documents, f.stats(t).Documents)
}

func TestCreate_DuplicateIdentifierRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	creator := document.NewCreator(f.store, document.Config{
		NamespacePrefix: prefix,
		Logger:          &core.NopLogger{},
		Assigner: identifier.NewAssigner(func(kind, name, sha1 string) string {
			return "SPDXRef-same"
		}),
	})
	before := f.stats(t)

	_, err := creator.Create(context.Background(), f.pkg.Package.ID, document.Options{})
	assert.True(t, errors.IsConstraintError(err))

	after := f.stats(t)
	assert.Equal(t, before.Documents, after.Documents, "no partially identified document is left")
	assert.Equal(t, before.Identifiers, after.Identifiers)
	assert.Equal(t, before.Namespaces, after.Namespaces)
}

func TestAssemble_ExtractedLicenses(t *testing.T) {
	evidence := "Copyright ACME, all rights reserved"
	f := newFixture(t, map[string][]core.Finding{
		"a.txt": {{ShortName: "MIT"}, {ShortName: "ACME-Proprietary", Evidence: &evidence}},
		"b.txt": {{ShortName: "ACME-Proprietary"}},
	})
	doc := f.assemble(t, f.create(t, document.Options{}).DocumentID)

	assert.Equal(t, []document.LicenseCount{
		{License: "LicenseRef-ACME-Proprietary", Count: 2},
		{License: "MIT", Count: 1},
	}, doc.Package.LicenseInfoFromFiles)
	assert.Equal(t, []string{"LicenseRef-ACME-Proprietary", "MIT"}, doc.Package.Files[0].LicenseInfo)

	require.Len(t, doc.ExtractedLicenses, 1)
	el := doc.ExtractedLicenses[0]
	assert.Equal(t, "LicenseRef-ACME-Proprietary", el.ID)
	assert.Equal(t, "ACME-Proprietary", el.Name)
	assert.Equal(t, evidence, el.Text)
}

func TestAssemble_MissingFileIdentifier(t *testing.T) {
	f := newFixture(t, nil)
	created := f.create(t, document.Options{})

	db := f.store.DB()
	_, err := db.Exec("DELETE FROM relationships")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM identifiers WHERE package_file_id IS NOT NULL")
	require.NoError(t, err)

	_, err = f.asm.Assemble(context.Background(), created.DocumentID)
	assert.Equal(t, errors.KindConsistency, errors.GetKind(err))
	assert.Contains(t, err.Error(), "a.txt")
}

func TestAssemble_UnknownDocument(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.asm.Assemble(context.Background(), 42)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	created := f.create(t, document.Options{})
	doc := f.assemble(t, created.DocumentID)
	target := doc.Package.Files[1].IDString

	reviewer := store.Creator{Name: "Jo Reviewer", Email: "jo@example.com"}
	require.NoError(t, f.creator.Annotate(ctx, created.DocumentID, target, store.AnnotationReview, reviewer, "checked by hand"))
	require.NoError(t, f.creator.Annotate(ctx, created.DocumentID, doc.IDString, store.AnnotationOther, reviewer, "ok"))

	doc = f.assemble(t, created.DocumentID)
	require.Len(t, doc.Package.Files[1].Annotations, 1)
	ann := doc.Package.Files[1].Annotations[0]
	assert.Equal(t, target, ann.Target)
	assert.Equal(t, store.AnnotationReview, ann.Type)
	assert.Equal(t, "Person: Jo Reviewer (jo@example.com)", ann.Annotator)
	assert.Equal(t, "checked by hand", ann.Comment)
	assert.Len(t, doc.Annotations, 1)
	assert.Empty(t, doc.Package.Files[0].Annotations)

	err := f.creator.Annotate(ctx, created.DocumentID, "SPDXRef-nope", store.AnnotationReview, reviewer, "x")
	assert.True(t, errors.IsNotFoundError(err))

	err = f.creator.Annotate(ctx, created.DocumentID, target, "PRAISE", reviewer, "x")
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))
}

func TestRelate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	created := f.create(t, document.Options{})
	doc := f.assemble(t, created.DocumentID)
	a, b := doc.Package.Files[0].IDString, doc.Package.Files[1].IDString

	added, err := f.creator.Relate(ctx, created.DocumentID, a, "STATIC_LINK", b, "linked at build time")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = f.creator.Relate(ctx, created.DocumentID, a, "STATIC_LINK", b, "")
	require.NoError(t, err)
	assert.False(t, added)

	doc = f.assemble(t, created.DocumentID)
	assert.Equal(t, 1, countEdges(doc.Package.Files[0].Relationships, "STATIC_LINK", b))
	assert.Contains(t, doc.Package.Files[0].Relationships,
		document.Relationship{Left: a, Type: "STATIC_LINK", Right: b, Comment: "linked at build time"})

	_, err = f.creator.Relate(ctx, created.DocumentID, a, "LIKES", b, "")
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))
	_, err = f.creator.Relate(ctx, created.DocumentID, a, "STATIC_LINK", "SPDXRef-nope", "")
	assert.True(t, errors.IsNotFoundError(err))
}
