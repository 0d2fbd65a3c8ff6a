package licenselist

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/store"
)

const sample = `{
  "licenseListVersion": "3.24",
  "releaseDate": "2024-05-22",
  "licenses": [
    {"licenseId": "MIT", "name": "MIT License", "reference": "https://spdx.org/licenses/MIT.html", "isOsiApproved": true},
    {"licenseId": "0BSD", "name": "BSD Zero Clause License", "seeAlso": ["http://landley.net/toybox/license.html"]},
    {"licenseId": "", "name": "broken"}
  ]
}`

func TestParse(t *testing.T) {
	l, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, "3.24", l.Version)
	require.Len(t, l.Licenses, 2)
	assert.True(t, l.Licenses[0].OSI)

	assert.Equal(t, []store.CatalogEntry{
		{ShortName: "0BSD", Name: "BSD Zero Clause License", URL: "http://landley.net/toybox/license.html"},
		{ShortName: "MIT", Name: "MIT License", URL: "https://spdx.org/licenses/MIT.html"},
	}, l.Entries())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("<html>"))
	assert.True(t, errors.IsContentError(err))

	_, err = Parse(strings.NewReader(`{"licenses": []}`))
	assert.True(t, errors.IsContentError(err))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "licenses.json")
	require.NoError(t, os.WriteFile(plain, []byte(sample), 0o644))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := filepath.Join(dir, "licenses.json.gz")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0o644))

	for _, path := range []string{plain, compressed} {
		l, err := Load(context.Background(), path)
		require.NoError(t, err, path)
		assert.Len(t, l.Entries(), 2, path)
	}

	_, err = Load(context.Background(), filepath.Join(dir, "missing.json"))
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoad_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/licenses.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	l, err := Load(context.Background(), srv.URL+"/licenses.json")
	require.NoError(t, err)
	assert.Equal(t, "3.24", l.Version)

	_, err = Load(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.IsUnavailable(err))
}
