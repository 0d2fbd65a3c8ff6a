// Package render serializes assembled documents as SPDX tag-value or JSON.
package render

import (
	"embed"
	"encoding/json"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/exploopio/sbomkit/pkg/document"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// Format is an output serialization.
type Format string

// Supported formats.
const (
	FormatTag  Format = "tag"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name as given on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tag", "tagvalue", "tag-value", "spdx":
		return FormatTag, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errors.E(errors.KindInvalidInput, "render.ParseFormat", "unknown format "+s+" (want tag or json)")
}

// MediaType returns the media type of the format.
func (f Format) MediaType() string {
	if f == FormatJSON {
		return "application/spdx+json"
	}
	return "text/spdx"
}

// Extension returns the file name extension of the format.
func (f Format) Extension() string {
	if f == FormatJSON {
		return ".spdx.json"
	}
	return ".spdx"
}

//go:embed templates/document.spdx.tmpl
var templates embed.FS

var tagTemplate = template.Must(template.New("document.spdx.tmpl").Funcs(template.FuncMap{
	"text":              text,
	"textOrNoAssertion": textOrNoAssertion,
	"utc":               utc,
}).ParseFS(templates, "templates/document.spdx.tmpl"))

func text(s string) string {
	return "<text>" + s + "</text>"
}

func textOrNoAssertion(s string) string {
	if s == "" || s == document.NoAssertion {
		return document.NoAssertion
	}
	return text(s)
}

func utc(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Render writes doc to w in the given format.
func Render(w io.Writer, doc *document.Document, format Format) error {
	const op = "render.Render"
	switch format {
	case FormatTag:
		if err := tagTemplate.Execute(w, doc); err != nil {
			return errors.E(errors.KindInternal, op, err)
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(toJSON(doc)); err != nil {
			return errors.E(errors.KindInternal, op, err)
		}
		return nil
	}
	return errors.E(errors.KindInvalidInput, op, "unknown format "+string(format))
}
