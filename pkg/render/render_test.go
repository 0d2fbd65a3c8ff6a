package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/document"
)

func sampleDocument() *document.Document {
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	return &document.Document{
		ID:                 1,
		SPDXVersion:        "SPDX-2.0",
		DataLicense:        "CC0-1.0",
		IDString:           "SPDXRef-DOCUMENT",
		Name:               "widget",
		Namespace:          "sqlite://sbomkit.db/widget-0000",
		LicenseListVersion: "3.24",
		Created:            created,
		Creators:           []string{"Tool: sbomkit"},
		Relationships: []document.Relationship{
			{Left: "SPDXRef-DOCUMENT", Type: "DESCRIBES", Right: "SPDXRef-package-widget"},
		},
		Package: document.Package{
			IDString:             "SPDXRef-package-widget",
			Name:                 "widget",
			Version:              "1.0",
			FileName:             "widget",
			Supplier:             document.NoAssertion,
			Originator:           document.NoAssertion,
			DownloadLocation:     document.NoAssertion,
			VerificationCode:     "d6a770ba38583ed4bb4525bd96e50461655d2758",
			HomePage:             document.NoAssertion,
			LicenseConcluded:     document.NoAssertion,
			LicenseDeclared:      document.NoAssertion,
			CopyrightText:        document.NoAssertion,
			LicenseInfoFromFiles: []document.LicenseCount{{License: "MIT", Count: 1}},
			Relationships: []document.Relationship{
				{Left: "SPDXRef-package-widget", Type: "CONTAINS", Right: "SPDXRef-file-a_txt"},
			},
			Files: []document.File{
				{
					IDString:         "SPDXRef-file-a_txt",
					Name:             "a.txt",
					Type:             "TEXT",
					Checksum:         "3f786850e387550fdab836ed7e6dc881de23001b",
					LicenseConcluded: document.NoAssertion,
					CopyrightText:    "Copyright 2024 ACME",
					LicenseInfo:      []string{"MIT", "LicenseRef-ACME"},
					Contributors:     []string{"Jo"},
					Annotations: []document.Annotation{{
						Target:    "SPDXRef-file-a_txt",
						Type:      "REVIEW",
						Annotator: "Person: Jo",
						Created:   created,
						Comment:   "looks fine",
					}},
				},
			},
		},
		ExtractedLicenses: []document.ExtractedLicense{
			{ID: "LicenseRef-ACME", Name: "ACME", Text: "All rights reserved"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTag, "tag": FormatTag, "SPDX": FormatTag, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("rdf")
	assert.Error(t, err)

	assert.Equal(t, "text/spdx", FormatTag.MediaType())
	assert.Equal(t, "application/spdx+json", FormatJSON.MediaType())
	assert.Equal(t, ".spdx.json", FormatJSON.Extension())
}

func TestRender_Tag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDocument(), FormatTag))
	out := buf.String()

	for _, line := range []string{
		"SPDXVersion: SPDX-2.0",
		"DataLicense: CC0-1.0",
		"DocumentNamespace: sqlite://sbomkit.db/widget-0000",
		"Creator: Tool: sbomkit",
		"Created: 2024-05-01T12:30:00Z",
		"Relationship: SPDXRef-DOCUMENT DESCRIBES SPDXRef-package-widget",
		"PackageVersion: 1.0",
		"PackageSupplier: NOASSERTION",
		"PackageLicenseInfoFromFiles: MIT",
		"PackageCopyrightText: NOASSERTION",
		"Relationship: SPDXRef-package-widget CONTAINS SPDXRef-file-a_txt",
		"FileName: ./a.txt",
		"FileChecksum: SHA1: 3f786850e387550fdab836ed7e6dc881de23001b",
		"LicenseInfoInFile: MIT",
		"LicenseInfoInFile: LicenseRef-ACME",
		"FileCopyrightText: <text>Copyright 2024 ACME</text>",
		"FileContributor: Jo",
		"AnnotationType: REVIEW",
		"SPDXREF: SPDXRef-file-a_txt",
		"LicenseID: LicenseRef-ACME",
		"ExtractedText: <text>All rights reserved</text>",
	} {
		assert.Contains(t, out, line+"\n")
	}
	assert.NotContains(t, out, "PackageChecksum:")
	assert.NotContains(t, out, "LicenseCrossReference:")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDocument(), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "SPDX-2.0", got["spdxVersion"])
	assert.Equal(t, "SPDXRef-DOCUMENT", got["SPDXID"])
	assert.Equal(t, []any{"SPDXRef-package-widget"}, got["documentDescribes"])

	info := got["creationInfo"].(map[string]any)
	assert.Equal(t, "2024-05-01T12:30:00Z", info["created"])
	assert.Equal(t, "3.24", info["licenseListVersion"])

	pkgs := got["packages"].([]any)
	require.Len(t, pkgs, 1)
	pkg := pkgs[0].(map[string]any)
	assert.Equal(t, []any{"MIT"}, pkg["licenseInfoFromFiles"])
	assert.Equal(t, []any{"SPDXRef-file-a_txt"}, pkg["hasFiles"])
	assert.NotContains(t, pkg, "checksums")

	files := got["files"].([]any)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)
	assert.Equal(t, "./a.txt", file["fileName"])
	assert.Equal(t, []any{"MIT", "LicenseRef-ACME"}, file["licenseInfoInFiles"])

	assert.Len(t, got["relationships"], 2)
	assert.Len(t, got["hasExtractedLicensingInfos"], 1)
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, sampleDocument(), Format("rdf"))
	assert.Error(t, err)
}
