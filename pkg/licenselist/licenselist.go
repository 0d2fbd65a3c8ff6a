// Package licenselist reads the SPDX license list (licenses.json) so it can
// be imported into the store as the catalog of official licenses.
package licenselist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/store"
)

// License is one entry of the list.
type License struct {
	ID         string   `json:"licenseId"`
	Name       string   `json:"name"`
	Reference  string   `json:"reference"`
	DetailsURL string   `json:"detailsUrl,omitempty"`
	SeeAlso    []string `json:"seeAlso,omitempty"`
	OSI        bool     `json:"isOsiApproved"`
	Deprecated bool     `json:"isDeprecatedLicenseId"`
}

// List is a parsed license list.
type List struct {
	Version     string    `json:"licenseListVersion"`
	ReleaseDate string    `json:"releaseDate,omitempty"`
	Licenses    []License `json:"licenses"`
}

// Parse decodes a licenses.json document. Entries without an id are dropped.
func Parse(r io.Reader) (*List, error) {
	const op = "licenselist.Parse"
	var l List
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, errors.E(errors.KindContent, op, "decode license list", err)
	}
	if l.Version == "" {
		return nil, errors.E(errors.KindContent, op, "license list has no licenseListVersion")
	}
	kept := l.Licenses[:0]
	for _, lic := range l.Licenses {
		if strings.TrimSpace(lic.ID) != "" {
			kept = append(kept, lic)
		}
	}
	l.Licenses = kept
	return &l, nil
}

// Entries converts the list to catalog entries sorted by short name. The
// cross reference is the license's reference URL, falling back to the first
// seeAlso link.
func (l *List) Entries() []store.CatalogEntry {
	entries := make([]store.CatalogEntry, 0, len(l.Licenses))
	for _, lic := range l.Licenses {
		url := lic.Reference
		if url == "" && len(lic.SeeAlso) > 0 {
			url = lic.SeeAlso[0]
		}
		entries = append(entries, store.CatalogEntry{
			ShortName: strings.TrimSpace(lic.ID),
			Name:      lic.Name,
			URL:       url,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ShortName < entries[j].ShortName })
	return entries
}

// Load reads the list from a file path or an http(s) URL. Files ending in
// .gz are decompressed.
func Load(ctx context.Context, src string) (*List, error) {
	const op = "licenselist.Load"
	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		rc, err = fetch(ctx, src)
	} else {
		rc, err = os.Open(src)
		if err != nil {
			err = errors.E(errors.KindNotFound, op, err)
		}
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(src, ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return nil, errors.E(errors.KindContent, op, err)
		}
		defer gz.Close()
		r = gz
	}
	return Parse(r)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	const op = "licenselist.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, op, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.E(errors.KindUnavailable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.E(errors.KindUnavailable, op, url+": "+resp.Status)
	}
	return resp.Body, nil
}
