package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// Extract unpacks the archive at path into dest and returns the relative
// paths of the regular files written, sorted. Entries that would land outside
// dest, links and device files are skipped.
func Extract(ctx context.Context, path, dest string) ([]string, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	var names []string
	switch {
	case format == FormatZip:
		names, err = extractZip(ctx, path, dest)
	case format.IsTar():
		names, err = extractTar(ctx, path, format, dest)
	default:
		return nil, errors.E(errors.KindContent, "archive.Extract", fmt.Sprintf("%s is not an archive", path))
	}
	if err != nil {
		return nil, errors.E(errors.KindContent, "archive.Extract", fmt.Sprintf("extract %s", path), err)
	}
	sort.Strings(names)
	return names, nil
}

// TempExtract unpacks the archive into a new temporary directory. The
// returned cleanup removes the directory.
func TempExtract(ctx context.Context, path string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "sbomkit-extract-")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if _, err := Extract(ctx, path, dir); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return dir, cleanup, nil
}

func extractTar(ctx context.Context, path string, format Format, dest string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case FormatTarZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		if err := dec.Reset(f); err != nil {
			return nil, fmt.Errorf("zstd reset: %w", err)
		}
		r = dec
	case FormatTarBzip2:
		r = bzip2.NewReader(f)
	}

	var names []string
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}

		target, ok := safeJoin(dest, hdr.Name)
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return nil, err
			}
			names = append(names, relName(dest, target))
		}
	}
	return names, nil
}

func extractZip(ctx context.Context, path, dest string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	var names []string
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, ok := safeJoin(dest, zf.Name)
		if !ok {
			continue
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", zf.Name, err)
		}
		err = writeFile(target, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		names = append(names, relName(dest, target))
	}
	return names, nil
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

// safeJoin joins name below dest, rejecting entries that escape it.
func safeJoin(dest, name string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(dest, clean), true
}

func relName(dest, target string) string {
	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
