// Package archive detects and unpacks package archives.
//
// Supported formats:
//   - tar, optionally compressed with gzip, zstd or bzip2
//   - zip (including jar/whl style containers)
//
// Detection is by content, never by file name, so a renamed archive is still
// recognised and a text file called "x.zip" is not.
//
// Example usage:
//
//	dir, cleanup, err := archive.TempExtract(ctx, "pkg-1.0.tar.gz")
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
package archive

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// Format identifies an archive container and its compression.
type Format string

const (
	// FormatNone is returned for files that are not archives.
	FormatNone Format = ""

	// FormatTar is an uncompressed tar stream.
	FormatTar Format = "tar"

	// FormatTarGzip is a gzip compressed tar stream.
	FormatTarGzip Format = "tar.gz"

	// FormatTarZstd is a zstd compressed tar stream.
	FormatTarZstd Format = "tar.zst"

	// FormatTarBzip2 is a bzip2 compressed tar stream.
	FormatTarBzip2 Format = "tar.bz2"

	// FormatZip is a zip container.
	FormatZip Format = "zip"
)

// IsTar reports whether the format is a tar variant.
func (f Format) IsTar() bool {
	switch f {
	case FormatTar, FormatTarGzip, FormatTarZstd, FormatTarBzip2:
		return true
	}
	return false
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte("BZh")
	magicZip   = []byte("PK\x03\x04")
	magicZipE  = []byte("PK\x05\x06") // empty archive
	magicUstar = []byte("ustar")
)

const tarHeaderSize = 512

// zstd decoders are expensive to allocate; reuse them.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	},
}

// Detect returns the archive format of the file at path, or FormatNone.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatNone, errors.E(errors.KindContent, "archive.Detect", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(tarHeaderSize)

	switch {
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipE):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return FormatNone, nil
		}
		defer zr.Close()
		if isTarHeader(zr) {
			return FormatTarGzip, nil
		}
	case bytes.HasPrefix(head, magicZstd):
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		if err := dec.Reset(br); err != nil {
			return FormatNone, nil
		}
		if isTarHeader(dec) {
			return FormatTarZstd, nil
		}
	case bytes.HasPrefix(head, magicBzip2):
		if isTarHeader(bzip2.NewReader(br)) {
			return FormatTarBzip2, nil
		}
	default:
		if isTarHeader(bytes.NewReader(head)) {
			return FormatTar, nil
		}
	}
	return FormatNone, nil
}

// IsArchive reports whether the file at path is a supported archive.
func IsArchive(path string) bool {
	format, err := Detect(path)
	return err == nil && format != FormatNone
}

func isTarHeader(r io.Reader) bool {
	hdr := make([]byte, tarHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return false
	}
	return bytes.Equal(hdr[257:262], magicUstar)
}
