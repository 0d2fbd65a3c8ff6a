// Package digest computes content digests for files and order-independent
// verification codes for directory trees.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// File returns the lowercase hex SHA-1 of the file's bytes.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.E(errors.KindContent, "digest.File", err)
	}
	defer f.Close()
	return Reader(f)
}

// Reader returns the lowercase hex SHA-1 of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.E(errors.KindContent, "digest.Reader", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the lowercase hex SHA-1 of b.
func Bytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// VerificationCode combines member digests into a package verification code:
// excluded digests are removed, the rest sorted and concatenated, and the
// concatenation digested. Duplicate digests are kept.
func VerificationCode(digests []string, excluded []string) string {
	skip := make(map[string]struct{}, len(excluded))
	for _, d := range excluded {
		skip[d] = struct{}{}
	}
	kept := make([]string, 0, len(digests))
	for _, d := range digests {
		if _, ok := skip[d]; ok {
			continue
		}
		kept = append(kept, d)
	}
	sort.Strings(kept)
	return Bytes([]byte(strings.Join(kept, "")))
}

// Member is one regular file of a digested tree.
type Member struct {
	// RelPath is the path relative to the tree root, prefixed with "./".
	RelPath string
	// Path is the path on disk.
	Path string
	SHA1 string
}

// Tree is a digested directory.
type Tree struct {
	Root             string
	VerificationCode string
	Files            []Member
}

// Digests returns the member digests in RelPath order.
func (t *Tree) Digests() []string {
	out := make([]string, len(t.Files))
	for i, m := range t.Files {
		out[i] = m.SHA1
	}
	return out
}

// Directory digests every regular file below root. Symlinks and other
// special files are skipped. Members are sorted by RelPath.
func Directory(root string, excluded []string) (*Tree, error) {
	var members []Member
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := File(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		members = append(members, Member{
			RelPath: "./" + filepath.ToSlash(rel),
			Path:    path,
			SHA1:    sum,
		})
		return nil
	})
	if err != nil {
		return nil, errors.E(errors.KindContent, "digest.Directory", err)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].RelPath < members[j].RelPath })
	t := &Tree{Root: root, Files: members}
	t.VerificationCode = VerificationCode(t.Digests(), excluded)
	return t, nil
}

// TrimRel strips the "./" prefix used for package-relative paths.
func TrimRel(rel string) string {
	return strings.TrimPrefix(rel, "./")
}
