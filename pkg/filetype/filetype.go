// Package filetype assigns the coarse SPDX file type to a file on disk.
package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/exploopio/sbomkit/pkg/archive"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// Type is an SPDX file type.
type Type string

const (
	Source        Type = "SOURCE"
	Binary        Type = "BINARY"
	Archive       Type = "ARCHIVE"
	Application   Type = "APPLICATION"
	Audio         Type = "AUDIO"
	Image         Type = "IMAGE"
	Text          Type = "TEXT"
	Video         Type = "VIDEO"
	Documentation Type = "DOCUMENTATION"
	SPDX          Type = "SPDX"
	Other         Type = "OTHER"
)

// All lists every file type, in the order they are seeded into the store.
var All = []Type{Source, Binary, Archive, Application, Audio, Image, Text, Video, Documentation, SPDX, Other}

var sourceExtensions = map[string]struct{}{
	".c": {}, ".h": {}, ".cc": {}, ".cpp": {}, ".cxx": {}, ".hpp": {}, ".hh": {},
	".go": {}, ".rs": {}, ".java": {}, ".kt": {}, ".scala": {}, ".cs": {}, ".swift": {},
	".py": {}, ".rb": {}, ".pl": {}, ".pm": {}, ".php": {}, ".lua": {}, ".tcl": {},
	".js": {}, ".mjs": {}, ".ts": {}, ".tsx": {}, ".jsx": {}, ".vue": {},
	".sh": {}, ".bash": {}, ".zsh": {}, ".ps1": {}, ".bat": {},
	".html": {}, ".htm": {}, ".xml": {}, ".xsl": {}, ".css": {}, ".scss": {},
	".s": {}, ".asm": {}, ".m": {}, ".mm": {}, ".f": {}, ".f90": {}, ".hs": {}, ".ml": {},
	".erl": {}, ".ex": {}, ".exs": {}, ".clj": {}, ".el": {}, ".lisp": {}, ".sql": {},
	".cmake": {}, ".mk": {}, ".am": {}, ".in": {}, ".m4": {},
}

var docExtensions = map[string]struct{}{
	".md": {}, ".markdown": {}, ".rst": {}, ".adoc": {}, ".texi": {}, ".info": {},
	".1": {}, ".3": {}, ".5": {}, ".8": {}, ".man": {}, ".pdf": {}, ".txt.doc": {},
}

var sourceMIMEs = []string{
	"text/x-c", "text/x-c++", "text/x-go", "text/x-java", "text/x-python", "text/x-python3",
	"text/x-perl", "text/x-ruby", "text/x-php", "text/x-lua", "text/x-tcl", "text/x-shellscript",
	"text/javascript", "application/javascript", "text/html", "text/xml", "application/xml",
}

var binaryMIMEs = []string{
	"application/x-executable", "application/x-sharedlib", "application/x-object",
	"application/x-elf", "application/x-mach-binary", "application/vnd.microsoft.portable-executable",
	"application/x-coredump", "application/x-archive", "application/x-java-applet",
	"application/wasm",
}

var archiveMIMEs = []string{
	"application/zip", "application/gzip", "application/x-tar", "application/x-bzip2",
	"application/x-xz", "application/zstd", "application/x-7z-compressed", "application/x-rar-compressed",
	"application/java-archive", "application/x-rpm", "application/vnd.debian.binary-package",
}

// Detect classifies the file at path.
func Detect(path string) (Type, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return Other, errors.E(errors.KindContent, "filetype.Detect", err)
	}
	return classify(path, m), nil
}

func classify(path string, m *mimetype.MIME) Type {
	name := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(name)

	if strings.HasSuffix(name, ".spdx") || strings.HasSuffix(name, ".spdx.json") ||
		strings.HasSuffix(name, ".spdx.rdf") || strings.HasSuffix(name, ".spdx.yaml") {
		return SPDX
	}
	if is(m, binaryMIMEs...) {
		return Binary
	}
	if archive.IsArchive(path) || is(m, archiveMIMEs...) {
		return Archive
	}
	if is(m, sourceMIMEs...) {
		return Source
	}

	top, _, _ := strings.Cut(m.String(), "/")
	text := is(m, "text/plain")
	if text {
		if _, ok := sourceExtensions[ext]; ok {
			return Source
		}
		if _, ok := docExtensions[ext]; ok {
			return Documentation
		}
		if isDocName(name) {
			return Documentation
		}
		return Text
	}

	switch top {
	case "image":
		return Image
	case "audio":
		return Audio
	case "video":
		return Video
	}
	if is(m, "application/pdf", "application/postscript") {
		return Documentation
	}
	if top == "application" && m.String() != "application/octet-stream" {
		return Application
	}
	return Other
}

// is reports whether m or one of its parents matches any of the given types.
func is(m *mimetype.MIME, types ...string) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, t := range types {
			if cur.Is(t) {
				return true
			}
		}
	}
	return false
}

func isDocName(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	switch base {
	case "readme", "changelog", "changes", "news", "authors", "install", "todo", "history", "faq":
		return true
	}
	return false
}
