package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/errors"
)

var sampleFiles = map[string]string{
	"pkg/README":      "readme\n",
	"pkg/src/main.c":  "int main(void) { return 0; }\n",
	"pkg/LICENSE.txt": "MIT License\n",
}

func tarBytes(t *testing.T, files map[string]string, extra ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
			Format:   tar.FormatUSTAR,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	for _, h := range extra {
		require.NoError(t, tw.WriteHeader(h))
		if h.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	plainTar := tarBytes(t, sampleFiles)

	tests := []struct {
		name string
		file string
		data []byte
		want Format
	}{
		{"tar", "p.tar", plainTar, FormatTar},
		{"tar.gz", "p.tgz", gzipBytes(t, plainTar), FormatTarGzip},
		{"tar.zst", "p.tar.zst", zstdBytes(t, plainTar), FormatTarZstd},
		{"zip", "p.jar", zipBytes(t, sampleFiles), FormatZip},
		{"gzip of text", "notes.gz", gzipBytes(t, []byte("just text, no tar inside")), FormatNone},
		{"text named zip", "fake.zip", []byte("hello"), FormatNone},
		{"empty", "empty", nil, FormatNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArchive(t, tt.file, tt.data)
			got, err := Detect(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != FormatNone, IsArchive(path))
		})
	}
}

func TestDetect_Missing(t *testing.T) {
	_, err := Detect(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.IsContentError(err))
}

func TestExtract(t *testing.T) {
	plainTar := tarBytes(t, sampleFiles)
	want := []string{"pkg/LICENSE.txt", "pkg/README", "pkg/src/main.c"}

	archives := map[string][]byte{
		"p.tar":     plainTar,
		"p.tar.gz":  gzipBytes(t, plainTar),
		"p.tar.zst": zstdBytes(t, plainTar),
		"p.zip":     zipBytes(t, sampleFiles),
	}

	for name, data := range archives {
		t.Run(name, func(t *testing.T) {
			path := writeArchive(t, name, data)
			dest := t.TempDir()

			names, err := Extract(context.Background(), path, dest)
			require.NoError(t, err)
			assert.Equal(t, want, names)

			content, err := os.ReadFile(filepath.Join(dest, "pkg", "src", "main.c"))
			require.NoError(t, err)
			assert.Equal(t, sampleFiles["pkg/src/main.c"], string(content))
		})
	}
}

func TestExtract_SkipsEscapingEntries(t *testing.T) {
	data := tarBytes(t, map[string]string{"ok.txt": "fine"},
		&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: 4, Typeflag: tar.TypeReg, Format: tar.FormatUSTAR},
		&tar.Header{Name: "link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink, Format: tar.FormatUSTAR},
	)
	path := writeArchive(t, "evil.tar", data)
	dest := t.TempDir()

	names, err := Extract(context.Background(), path, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.txt"}, names)

	_, err = os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_NotAnArchive(t *testing.T) {
	path := writeArchive(t, "plain.txt", []byte("plain"))
	_, err := Extract(context.Background(), path, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsContentError(err))
}

func TestExtract_Corrupt(t *testing.T) {
	data := gzipBytes(t, tarBytes(t, sampleFiles))
	// Keep the gzip and tar headers, drop the rest of the stream.
	path := writeArchive(t, "broken.tar.gz", data[:len(data)/2])

	_, err := Extract(context.Background(), path, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsContentError(err))
}

func TestTempExtract(t *testing.T) {
	path := writeArchive(t, "p.zip", zipBytes(t, sampleFiles))

	dir, cleanup, err := TempExtract(context.Background(), path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "pkg", "README"))

	cleanup()
	assert.NoDirExists(t, dir)
}

func TestExtract_Cancelled(t *testing.T) {
	path := writeArchive(t, "p.tar", tarBytes(t, sampleFiles))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, path, t.TempDir())
	require.Error(t, err)
}
