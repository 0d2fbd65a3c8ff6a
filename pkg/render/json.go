package render

import (
	"github.com/exploopio/sbomkit/pkg/document"
)

// SPDX 2.x JSON model. Only the fields sbomkit produces are present.

type jsonDocument struct {
	SPDXVersion                string                 `json:"spdxVersion"`
	DataLicense                string                 `json:"dataLicense"`
	SPDXID                     string                 `json:"SPDXID"`
	Name                       string                 `json:"name"`
	DocumentNamespace          string                 `json:"documentNamespace"`
	Comment                    string                 `json:"comment,omitempty"`
	CreationInfo               jsonCreationInfo       `json:"creationInfo"`
	DocumentDescribes          []string               `json:"documentDescribes"`
	Packages                   []jsonPackage          `json:"packages"`
	Files                      []jsonFile             `json:"files"`
	Relationships              []jsonRelationship     `json:"relationships"`
	Annotations                []jsonAnnotation       `json:"annotations,omitempty"`
	HasExtractedLicensingInfos []jsonExtractedLicense `json:"hasExtractedLicensingInfos,omitempty"`
}

type jsonCreationInfo struct {
	Created            string   `json:"created"`
	Creators           []string `json:"creators"`
	Comment            string   `json:"comment,omitempty"`
	LicenseListVersion string   `json:"licenseListVersion"`
}

type jsonChecksum struct {
	Algorithm     string `json:"algorithm"`
	ChecksumValue string `json:"checksumValue"`
}

type jsonVerificationCode struct {
	Value string `json:"packageVerificationCodeValue"`
}

type jsonPackage struct {
	SPDXID                  string               `json:"SPDXID"`
	Name                    string               `json:"name"`
	VersionInfo             string               `json:"versionInfo,omitempty"`
	PackageFileName         string               `json:"packageFileName"`
	Supplier                string               `json:"supplier"`
	Originator              string               `json:"originator"`
	DownloadLocation        string               `json:"downloadLocation"`
	FilesAnalyzed           bool                 `json:"filesAnalyzed"`
	PackageVerificationCode jsonVerificationCode `json:"packageVerificationCode"`
	Checksums               []jsonChecksum       `json:"checksums,omitempty"`
	Homepage                string               `json:"homepage"`
	SourceInfo              string               `json:"sourceInfo,omitempty"`
	LicenseConcluded        string               `json:"licenseConcluded"`
	LicenseInfoFromFiles    []string             `json:"licenseInfoFromFiles"`
	LicenseDeclared         string               `json:"licenseDeclared"`
	LicenseComments         string               `json:"licenseComments,omitempty"`
	CopyrightText           string               `json:"copyrightText"`
	Summary                 string               `json:"summary,omitempty"`
	Description             string               `json:"description,omitempty"`
	Comment                 string               `json:"comment,omitempty"`
	HasFiles                []string             `json:"hasFiles"`
	Annotations             []jsonAnnotation     `json:"annotations,omitempty"`
}

type jsonFile struct {
	SPDXID             string           `json:"SPDXID"`
	FileName           string           `json:"fileName"`
	FileTypes          []string         `json:"fileTypes"`
	Checksums          []jsonChecksum   `json:"checksums"`
	LicenseConcluded   string           `json:"licenseConcluded"`
	LicenseInfoInFiles []string         `json:"licenseInfoInFiles"`
	LicenseComments    string           `json:"licenseComments,omitempty"`
	CopyrightText      string           `json:"copyrightText"`
	Comment            string           `json:"comment,omitempty"`
	NoticeText         string           `json:"noticeText,omitempty"`
	FileContributors   []string         `json:"fileContributors,omitempty"`
	Annotations        []jsonAnnotation `json:"annotations,omitempty"`
}

type jsonRelationship struct {
	Element string `json:"spdxElementId"`
	Type    string `json:"relationshipType"`
	Related string `json:"relatedSpdxElement"`
	Comment string `json:"comment,omitempty"`
}

type jsonAnnotation struct {
	Annotator string `json:"annotator"`
	Date      string `json:"annotationDate"`
	Type      string `json:"annotationType"`
	Comment   string `json:"comment"`
}

type jsonExtractedLicense struct {
	LicenseID     string   `json:"licenseId"`
	Name          string   `json:"name"`
	ExtractedText string   `json:"extractedText"`
	SeeAlsos      []string `json:"seeAlsos,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

func toJSON(doc *document.Document) jsonDocument {
	pkg := doc.Package
	out := jsonDocument{
		SPDXVersion:       doc.SPDXVersion,
		DataLicense:       doc.DataLicense,
		SPDXID:            doc.IDString,
		Name:              doc.Name,
		DocumentNamespace: doc.Namespace,
		Comment:           doc.DocumentComment,
		CreationInfo: jsonCreationInfo{
			Created:            utc(doc.Created),
			Creators:           nonNil(doc.Creators),
			Comment:            doc.CreatorComment,
			LicenseListVersion: doc.LicenseListVersion,
		},
		DocumentDescribes: []string{pkg.IDString},
		Files:             make([]jsonFile, 0, len(pkg.Files)),
		Annotations:       annotations(doc.Annotations),
	}
	out.Relationships = appendRelationships(nil, doc.Relationships)
	out.Relationships = appendRelationships(out.Relationships, pkg.Relationships)

	jp := jsonPackage{
		SPDXID:                  pkg.IDString,
		Name:                    pkg.Name,
		VersionInfo:             pkg.Version,
		PackageFileName:         pkg.FileName,
		Supplier:                pkg.Supplier,
		Originator:              pkg.Originator,
		DownloadLocation:        pkg.DownloadLocation,
		FilesAnalyzed:           true,
		PackageVerificationCode: jsonVerificationCode{Value: pkg.VerificationCode},
		Homepage:                pkg.HomePage,
		SourceInfo:              pkg.SourceInfo,
		LicenseConcluded:        pkg.LicenseConcluded,
		LicenseDeclared:         pkg.LicenseDeclared,
		LicenseComments:         pkg.LicenseComment,
		CopyrightText:           pkg.CopyrightText,
		Summary:                 pkg.Summary,
		Description:             pkg.Description,
		Comment:                 pkg.Comment,
		HasFiles:                make([]string, 0, len(pkg.Files)),
		Annotations:             annotations(pkg.Annotations),
	}
	if pkg.Checksum != "" {
		jp.Checksums = []jsonChecksum{{Algorithm: "SHA1", ChecksumValue: pkg.Checksum}}
	}
	for _, lc := range pkg.LicenseInfoFromFiles {
		jp.LicenseInfoFromFiles = append(jp.LicenseInfoFromFiles, lc.License)
	}

	for _, f := range pkg.Files {
		jp.HasFiles = append(jp.HasFiles, f.IDString)
		out.Files = append(out.Files, jsonFile{
			SPDXID:             f.IDString,
			FileName:           "./" + f.Name,
			FileTypes:          []string{f.Type},
			Checksums:          []jsonChecksum{{Algorithm: "SHA1", ChecksumValue: f.Checksum}},
			LicenseConcluded:   f.LicenseConcluded,
			LicenseInfoInFiles: f.LicenseInfo,
			LicenseComments:    f.LicenseComment,
			CopyrightText:      f.CopyrightText,
			Comment:            f.Comment,
			NoticeText:         f.Notice,
			FileContributors:   f.Contributors,
			Annotations:        annotations(f.Annotations),
		})
		out.Relationships = appendRelationships(out.Relationships, f.Relationships)
	}
	out.Packages = []jsonPackage{jp}

	for _, el := range doc.ExtractedLicenses {
		jl := jsonExtractedLicense{
			LicenseID:     el.ID,
			Name:          el.Name,
			ExtractedText: el.Text,
			Comment:       el.Comment,
		}
		if el.CrossReference != "" {
			jl.SeeAlsos = []string{el.CrossReference}
		}
		out.HasExtractedLicensingInfos = append(out.HasExtractedLicensingInfos, jl)
	}
	if out.Relationships == nil {
		out.Relationships = []jsonRelationship{}
	}
	return out
}

func appendRelationships(dst []jsonRelationship, rels []document.Relationship) []jsonRelationship {
	for _, r := range rels {
		dst = append(dst, jsonRelationship{Element: r.Left, Type: r.Type, Related: r.Right, Comment: r.Comment})
	}
	return dst
}

func annotations(in []document.Annotation) []jsonAnnotation {
	var out []jsonAnnotation
	for _, a := range in {
		out = append(out, jsonAnnotation{
			Annotator: a.Annotator,
			Date:      utc(a.Created),
			Type:      a.Type,
			Comment:   a.Comment,
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
