package store

import "time"

// File is one distinct piece of content, keyed by SHA-1.
type File struct {
	ID            int64   `json:"file_id"`
	SHA1          string  `json:"sha1"`
	Type          string  `json:"type"`
	CopyrightText *string `json:"copyright_text,omitempty"`
	Comment       string  `json:"comment,omitempty"`
	Notice        string  `json:"notice,omitempty"`
}

// Package is either an archive (SHA1 set) or a directory snapshot (DirCode
// set). VerificationCode is present for both.
type Package struct {
	ID                 int64     `json:"package_id"`
	Name               string    `json:"name"`
	Version            string    `json:"version,omitempty"`
	FileName           string    `json:"file_name"`
	SupplierID         *int64    `json:"supplier_id,omitempty"`
	OriginatorID       *int64    `json:"originator_id,omitempty"`
	DownloadLocation   *string   `json:"download_location,omitempty"`
	VerificationCode   string    `json:"verification_code"`
	SHA1               *string   `json:"sha1,omitempty"`
	DirCode            *string   `json:"dir_code,omitempty"`
	HomePage           *string   `json:"home_page,omitempty"`
	SourceInfo         string    `json:"source_info,omitempty"`
	ConcludedLicenseID *int64    `json:"concluded_license_id,omitempty"`
	DeclaredLicenseID  *int64    `json:"declared_license_id,omitempty"`
	LicenseComment     string    `json:"license_comment,omitempty"`
	CopyrightText      *string   `json:"copyright_text,omitempty"`
	Summary            string    `json:"summary,omitempty"`
	Description        string    `json:"description,omitempty"`
	Comment            string    `json:"comment,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// IsArchive reports whether the package was registered from a single file.
func (p *Package) IsArchive() bool {
	return p.SHA1 != nil
}

// PackageFile is a membership row pairing a package with a file.
type PackageFile struct {
	ID                 int64  `json:"package_file_id"`
	PackageID          int64  `json:"package_id"`
	FileID             int64  `json:"file_id"`
	FileName           string `json:"file_name"`
	ConcludedLicenseID *int64 `json:"concluded_license_id,omitempty"`
	LicenseComment     string `json:"license_comment,omitempty"`

	// SHA1 of the member file, filled by PackageFiles.
	SHA1 string `json:"sha1,omitempty"`
}

// License is a catalog or found license, keyed by normalized short name.
type License struct {
	ID             int64   `json:"license_id"`
	Name           *string `json:"name,omitempty"`
	ShortName      string  `json:"short_name"`
	CrossReference string  `json:"cross_reference,omitempty"`
	Comment        string  `json:"comment,omitempty"`
	IsOfficial     bool    `json:"is_spdx_official"`
}

// IDString returns the identifier used for the license inside documents.
func (l *License) IDString() string {
	return LicenseIDString(l.ShortName, l.IsOfficial)
}

// LicenseIDString renders a short name the way documents reference it.
func LicenseIDString(shortName string, official bool) string {
	if official {
		return shortName
	}
	return "LicenseRef-" + shortName
}

// CatalogEntry is one license of an imported reference list.
type CatalogEntry struct {
	ShortName string
	Name      string
	URL       string
}

// Creator types.
const (
	CreatorPerson       = "Person"
	CreatorOrganization = "Organization"
	CreatorTool         = "Tool"
)

// Creator is a person, organization or tool credited on a document.
type Creator struct {
	ID    int64  `json:"creator_id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Text renders the creator as "Type: name (email)".
func (c *Creator) Text() string {
	s := c.Type + ": " + c.Name
	if c.Email != "" {
		s += " (" + c.Email + ")"
	}
	return s
}

// Namespace is the globally addressable scope of one document.
type Namespace struct {
	ID  int64  `json:"document_namespace_id"`
	URI string `json:"uri"`
}

// Document is the root of one generated SBOM.
type Document struct {
	ID                 int64     `json:"document_id"`
	NamespaceID        int64     `json:"document_namespace_id"`
	DataLicenseID      int64     `json:"data_license_id"`
	SPDXVersion        string    `json:"spdx_version"`
	Name               string    `json:"name"`
	LicenseListVersion string    `json:"license_list_version"`
	Created            time.Time `json:"created"`
	CreatorComment     string    `json:"creator_comment,omitempty"`
	DocumentComment    string    `json:"document_comment,omitempty"`
	PackageID          int64     `json:"package_id"`
}

// Identifier names exactly one of a document, package or package file
// inside a namespace.
type Identifier struct {
	ID            int64  `json:"identifier_id"`
	NamespaceID   int64  `json:"document_namespace_id"`
	IDString      string `json:"id_string"`
	DocumentID    *int64 `json:"document_id,omitempty"`
	PackageID     *int64 `json:"package_id,omitempty"`
	PackageFileID *int64 `json:"package_file_id,omitempty"`
}

// Relationship is a directed, typed edge between two identifiers.
type Relationship struct {
	ID      int64  `json:"relationship_id"`
	LeftID  int64  `json:"left_identifier_id"`
	Type    string `json:"type"`
	RightID int64  `json:"right_identifier_id"`
	Comment string `json:"comment,omitempty"`
}

// Annotation types.
const (
	AnnotationReview = "REVIEW"
	AnnotationOther  = "OTHER"
)

// Annotation is a comment attached to an identifier of a document.
type Annotation struct {
	ID           int64     `json:"annotation_id"`
	DocumentID   int64     `json:"document_id"`
	Type         string    `json:"type"`
	IdentifierID int64     `json:"identifier_id"`
	CreatorID    int64     `json:"creator_id"`
	Created      time.Time `json:"created"`
	Comment      string    `json:"comment"`
}

// FileLicense is a (file, license) association with optional evidence.
type FileLicense struct {
	FileID        int64  `json:"file_id"`
	LicenseID     int64  `json:"license_id"`
	ExtractedText string `json:"extracted_text,omitempty"`
}
