// Package core defines the interfaces shared between the scan pipeline and
// capability providers, plus the logging abstraction used across sbomkit.
package core

import (
	"context"
	"sort"
)

// =============================================================================
// Findings
// =============================================================================

// Finding is a license reported by a provider, with optional evidence text.
type Finding struct {
	ShortName string
	Evidence  *string
}

// Result is the outcome of one provider invocation.
// An empty Findings slice is a real result: the provider ran and found nothing.
type Result struct {
	Findings []Finding
}

// ShortNames returns the distinct short names in the result, sorted.
func (r *Result) ShortNames() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Findings))
	names := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.ShortName]; ok {
			continue
		}
		seen[f.ShortName] = struct{}{}
		names = append(names, f.ShortName)
	}
	sort.Strings(names)
	return names
}

// Merge folds other into r, keeping the first evidence seen per short name.
func (r *Result) Merge(other []Finding) {
	index := make(map[string]int, len(r.Findings))
	for i, f := range r.Findings {
		index[f.ShortName] = i
	}
	for _, f := range other {
		if i, ok := index[f.ShortName]; ok {
			if r.Findings[i].Evidence == nil && f.Evidence != nil {
				r.Findings[i].Evidence = f.Evidence
			}
			continue
		}
		index[f.ShortName] = len(r.Findings)
		r.Findings = append(r.Findings, f)
	}
}

// =============================================================================
// Provider Interfaces
// =============================================================================

// Target is a single file handed to a provider.
type Target struct {
	// Path is the absolute path of the file on disk.
	Path string

	// RelPath is the package-relative path without the leading "./".
	RelPath string

	// SHA1 is the content digest of the file.
	SHA1 string

	// FileID is the store id of the file, zero for files outside the store.
	FileID int64

	// Members scans files found inside the target (archive members) through
	// the same registration and cache path as the outer scan. May be nil.
	Members MemberScanner
}

// Provider is an external scanning capability that reports license findings
// for a file. It returns errors.ErrUnavailable when it could not run on the
// target; that outcome is never cached.
type Provider interface {
	// Name returns the provider name used in the scan cache.
	Name() string

	// Invoke runs the provider against one file.
	Invoke(ctx context.Context, target Target) (*Result, error)
}

// PackageProvider is a provider that can scan a whole package root in one
// invocation. Results are keyed by package-relative path without "./".
type PackageProvider interface {
	Provider

	InvokePackage(ctx context.Context, root string) (map[string][]Finding, error)
}

// InstallChecker is implemented by providers backed by an external binary.
type InstallChecker interface {
	IsInstalled(ctx context.Context) (bool, string, error)
}

// MemberScanner registers and scans a file found inside another target.
// Inner results are cached under the given provider independently of the
// outer invocation.
type MemberScanner interface {
	ScanMember(ctx context.Context, provider string, path string) ([]Finding, error)
}
