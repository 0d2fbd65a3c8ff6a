package document

import "time"

// NoAssertion stands in for values the store has no data for.
const NoAssertion = "NOASSERTION"

// Document is the assembled tree of one SBOM, ready for a renderer.
type Document struct {
	ID                 int64          `json:"document_id"`
	SPDXVersion        string         `json:"spdx_version"`
	DataLicense        string         `json:"data_license"`
	IDString           string         `json:"id_string"`
	Name               string         `json:"name"`
	Namespace          string         `json:"namespace"`
	LicenseListVersion string         `json:"license_list_version"`
	Created            time.Time      `json:"created"`
	CreatorComment     string         `json:"creator_comment,omitempty"`
	DocumentComment    string         `json:"document_comment,omitempty"`
	Creators           []string       `json:"creators"`
	Annotations        []Annotation   `json:"annotations,omitempty"`
	Relationships      []Relationship `json:"relationships,omitempty"`

	Package Package `json:"package"`

	// ExtractedLicenses are the non-catalog licenses referenced by files.
	ExtractedLicenses []ExtractedLicense `json:"extracted_licenses,omitempty"`
}

// Annotation is a comment attached to an element of the document.
type Annotation struct {
	Target    string    `json:"target"`
	Type      string    `json:"type"`
	Annotator string    `json:"annotator"`
	Created   time.Time `json:"created"`
	Comment   string    `json:"comment"`
}

// Relationship is an edge between two id strings of the document.
type Relationship struct {
	Left    string `json:"left"`
	Type    string `json:"type"`
	Right   string `json:"right"`
	Comment string `json:"comment,omitempty"`
}

// LicenseCount is one entry of a package's license summary. Count is the
// number of member files the license was found on.
type LicenseCount struct {
	License string `json:"license"`
	Count   int64  `json:"count"`
}

// Package is the package described by the document.
type Package struct {
	IDString         string `json:"id_string"`
	Name             string `json:"name"`
	Version          string `json:"version,omitempty"`
	FileName         string `json:"file_name"`
	Supplier         string `json:"supplier"`
	Originator       string `json:"originator"`
	DownloadLocation string `json:"download_location"`
	VerificationCode string `json:"verification_code"`

	// Checksum is the SHA-1 of an archive package, empty for directories.
	Checksum string `json:"checksum,omitempty"`

	HomePage         string `json:"home_page"`
	SourceInfo       string `json:"source_info,omitempty"`
	LicenseConcluded string `json:"license_concluded"`
	LicenseDeclared  string `json:"license_declared"`
	LicenseComment   string `json:"license_comment,omitempty"`
	CopyrightText    string `json:"copyright_text"`
	Summary          string `json:"summary,omitempty"`
	Description      string `json:"description,omitempty"`
	Comment          string `json:"comment,omitempty"`

	// LicenseInfoFromFiles is never empty; a package without findings has
	// a single NoAssertion entry.
	LicenseInfoFromFiles []LicenseCount `json:"license_info_from_files"`

	Annotations   []Annotation   `json:"annotations,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Files         []File         `json:"files"`
}

// File is one member of the package, as named inside it.
type File struct {
	IDString         string `json:"id_string"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Checksum         string `json:"checksum"`
	LicenseConcluded string `json:"license_concluded"`
	LicenseComment   string `json:"license_comment,omitempty"`
	CopyrightText    string `json:"copyright_text"`
	Comment          string `json:"comment,omitempty"`
	Notice           string `json:"notice,omitempty"`

	// LicenseInfo lists the licenses found in the file, or NoAssertion.
	LicenseInfo []string `json:"license_info"`

	Contributors  []string       `json:"contributors,omitempty"`
	Annotations   []Annotation   `json:"annotations,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// HasFindings reports whether any license was found in the file.
func (f *File) HasFindings() bool {
	return len(f.LicenseInfo) > 0 && f.LicenseInfo[0] != NoAssertion
}

// ExtractedLicense is a license that is not part of the catalog, with the
// evidence text it was found with.
type ExtractedLicense struct {
	ID             string `json:"license_id"`
	Name           string `json:"name"`
	Text           string `json:"extracted_text"`
	CrossReference string `json:"cross_reference,omitempty"`
	Comment        string `json:"comment,omitempty"`
}
