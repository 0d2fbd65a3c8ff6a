package document

import (
	"context"
	"strconv"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/store"
)

// Assembler reads documents back out of the store.
type Assembler struct {
	store *store.Store
}

// NewAssembler returns an Assembler backed by s.
func NewAssembler(s *store.Store) *Assembler {
	return &Assembler{store: s}
}

// Assemble builds the full tree of a document in one read transaction. It
// never writes. A missing identifier or license referenced by the document
// is a consistency error naming the offending id.
func (a *Assembler) Assemble(ctx context.Context, docID int64) (*Document, error) {
	var out *Document
	err := a.store.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = assemble(ctx, tx, docID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "document.Assemble")
	}
	return out, nil
}

func assemble(ctx context.Context, tx *store.Tx, docID int64) (*Document, error) {
	const op = "document.assemble"
	row, err := tx.Document(ctx, docID)
	if err != nil {
		return nil, err
	}
	ns, err := tx.Namespace(ctx, row.NamespaceID)
	if err != nil {
		return nil, err
	}
	dataLicense, err := licenseIDString(ctx, tx, &row.DataLicenseID)
	if err != nil {
		return nil, err
	}
	docIdent, ok, err := tx.DocumentIdentifier(ctx, ns.ID, row.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.E(errors.KindConsistency, op, "document "+itoa(row.ID)+" has no identifier")
	}

	doc := &Document{
		ID:                 row.ID,
		SPDXVersion:        row.SPDXVersion,
		DataLicense:        dataLicense,
		IDString:           docIdent.IDString,
		Name:               row.Name,
		Namespace:          ns.URI,
		LicenseListVersion: row.LicenseListVersion,
		Created:            row.Created,
		CreatorComment:     row.CreatorComment,
		DocumentComment:    row.DocumentComment,
	}

	creators, err := tx.DocumentCreators(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range creators {
		doc.Creators = append(doc.Creators, c.Text())
	}
	if doc.Annotations, err = annotations(ctx, tx, row.ID, docIdent.ID); err != nil {
		return nil, err
	}
	if doc.Relationships, err = relationships(ctx, tx, docIdent.ID); err != nil {
		return nil, err
	}

	if doc.Package, err = assemblePackage(ctx, tx, row); err != nil {
		return nil, err
	}

	extracted, err := tx.UnofficialLicenses(ctx, row.PackageID)
	if err != nil {
		return nil, err
	}
	for _, e := range extracted {
		name := e.License.ShortName
		if e.License.Name != nil && *e.License.Name != "" {
			name = *e.License.Name
		}
		doc.ExtractedLicenses = append(doc.ExtractedLicenses, ExtractedLicense{
			ID:             e.License.IDString(),
			Name:           name,
			Text:           orNoAssertion(e.ExtractedText),
			CrossReference: e.License.CrossReference,
			Comment:        e.License.Comment,
		})
	}
	return doc, nil
}

func assemblePackage(ctx context.Context, tx *store.Tx, row store.Document) (Package, error) {
	const op = "document.assemblePackage"
	p, err := tx.Package(ctx, row.PackageID)
	if err != nil {
		return Package{}, err
	}
	ident, ok, err := tx.PackageIdentifier(ctx, row.NamespaceID, p.ID)
	if err != nil {
		return Package{}, err
	}
	if !ok {
		return Package{}, errors.E(errors.KindConsistency, op, "package "+itoa(p.ID)+" has no identifier in namespace "+itoa(row.NamespaceID))
	}

	pkg := Package{
		IDString:         ident.IDString,
		Name:             p.Name,
		Version:          p.Version,
		FileName:         p.FileName,
		DownloadLocation: deref(p.DownloadLocation),
		VerificationCode: p.VerificationCode,
		HomePage:         deref(p.HomePage),
		SourceInfo:       p.SourceInfo,
		LicenseComment:   p.LicenseComment,
		CopyrightText:    deref(p.CopyrightText),
		Summary:          p.Summary,
		Description:      p.Description,
		Comment:          p.Comment,
	}
	if p.SHA1 != nil {
		pkg.Checksum = *p.SHA1
	}
	if pkg.Supplier, err = creatorText(ctx, tx, p.SupplierID); err != nil {
		return Package{}, err
	}
	if pkg.Originator, err = creatorText(ctx, tx, p.OriginatorID); err != nil {
		return Package{}, err
	}
	if pkg.LicenseConcluded, err = licenseIDString(ctx, tx, p.ConcludedLicenseID); err != nil {
		return Package{}, err
	}
	if pkg.LicenseDeclared, err = licenseIDString(ctx, tx, p.DeclaredLicenseID); err != nil {
		return Package{}, err
	}

	summary, err := tx.PackageLicenseSummary(ctx, p.ID)
	if err != nil {
		return Package{}, err
	}
	for _, lc := range summary {
		pkg.LicenseInfoFromFiles = append(pkg.LicenseInfoFromFiles, LicenseCount{
			License: lc.License.IDString(),
			Count:   lc.Count,
		})
	}
	if len(pkg.LicenseInfoFromFiles) == 0 {
		pkg.LicenseInfoFromFiles = []LicenseCount{{License: NoAssertion}}
	}

	if pkg.Annotations, err = annotations(ctx, tx, row.ID, ident.ID); err != nil {
		return Package{}, err
	}
	if pkg.Relationships, err = relationships(ctx, tx, ident.ID); err != nil {
		return Package{}, err
	}

	rows, err := tx.DocumentFiles(ctx, row.NamespaceID, p.ID)
	if err != nil {
		return Package{}, err
	}
	pkg.Files = make([]File, 0, len(rows))
	for _, r := range rows {
		f, err := assembleFile(ctx, tx, row.ID, r)
		if err != nil {
			return Package{}, err
		}
		pkg.Files = append(pkg.Files, f)
	}
	return pkg, nil
}

func assembleFile(ctx context.Context, tx *store.Tx, docID int64, r store.DocumentFileRow) (File, error) {
	if r.IdentifierID == nil || r.IDString == nil {
		return File{}, errors.E(errors.KindConsistency, "document.assembleFile",
			"package file "+itoa(r.PackageFileID)+" ("+r.FileName+") has no identifier")
	}
	f := File{
		IDString:       *r.IDString,
		Name:           r.FileName,
		Type:           r.File.Type,
		Checksum:       r.File.SHA1,
		LicenseComment: r.LicenseComment,
		CopyrightText:  deref(r.File.CopyrightText),
		Comment:        r.File.Comment,
		Notice:         r.File.Notice,
	}
	var err error
	if f.LicenseConcluded, err = licenseIDString(ctx, tx, r.ConcludedLicenseID); err != nil {
		return File{}, err
	}

	findings, err := tx.FileLicenseFindings(ctx, r.File.ID)
	if err != nil {
		return File{}, err
	}
	for _, lf := range findings {
		f.LicenseInfo = append(f.LicenseInfo, lf.License.IDString())
	}
	if len(f.LicenseInfo) == 0 {
		f.LicenseInfo = []string{NoAssertion}
	}

	if f.Contributors, err = tx.FileContributors(ctx, r.File.ID); err != nil {
		return File{}, err
	}
	if f.Annotations, err = annotations(ctx, tx, docID, *r.IdentifierID); err != nil {
		return File{}, err
	}
	if f.Relationships, err = relationships(ctx, tx, *r.IdentifierID); err != nil {
		return File{}, err
	}
	return f, nil
}

func annotations(ctx context.Context, tx *store.Tx, docID, identID int64) ([]Annotation, error) {
	views, err := tx.Annotations(ctx, docID, identID)
	if err != nil {
		return nil, err
	}
	var out []Annotation
	for _, v := range views {
		out = append(out, Annotation{
			Target:    v.Target,
			Type:      v.Type,
			Annotator: v.Creator.Text(),
			Created:   v.Created,
			Comment:   v.Comment,
		})
	}
	return out, nil
}

func relationships(ctx context.Context, tx *store.Tx, identID int64) ([]Relationship, error) {
	views, err := tx.RelationshipsFrom(ctx, identID)
	if err != nil {
		return nil, err
	}
	var out []Relationship
	for _, v := range views {
		out = append(out, Relationship{Left: v.Left, Type: v.Type, Right: v.Right, Comment: v.Comment})
	}
	return out, nil
}

// licenseIDString resolves an optional license reference. A nil id is
// NoAssertion; a dangling id is a consistency error.
func licenseIDString(ctx context.Context, tx *store.Tx, id *int64) (string, error) {
	if id == nil {
		return NoAssertion, nil
	}
	l, err := tx.License(ctx, *id)
	if errors.IsNotFoundError(err) {
		return "", errors.E(errors.KindConsistency, "document.license", "license "+itoa(*id)+" referenced but missing")
	}
	if err != nil {
		return "", err
	}
	return l.IDString(), nil
}

func creatorText(ctx context.Context, tx *store.Tx, id *int64) (string, error) {
	if id == nil {
		return NoAssertion, nil
	}
	c, err := tx.Creator(ctx, *id)
	if errors.IsNotFoundError(err) {
		return "", errors.E(errors.KindConsistency, "document.creator", "creator "+itoa(*id)+" referenced but missing")
	}
	if err != nil {
		return "", err
	}
	return c.Text(), nil
}

func deref(s *string) string {
	if s == nil {
		return NoAssertion
	}
	return orNoAssertion(*s)
}

func orNoAssertion(s string) string {
	if s == "" {
		return NoAssertion
	}
	return s
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
