package providers

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// TrivyName is the name of the trivy license provider.
const TrivyName = "trivy"

var trivyDefaultArgs = []string{
	"fs", "--scanners", "license", "--license-full", "--format", "json", "--quiet", TargetPlaceholder,
}

// trivyReport is the subset of trivy's JSON report read for licenses.
type trivyReport struct {
	SchemaVersion int           `json:"SchemaVersion"`
	ArtifactName  string        `json:"ArtifactName"`
	Results       []trivyResult `json:"Results"`
}

type trivyResult struct {
	Target   string         `json:"Target"`
	Class    string         `json:"Class"`
	Licenses []trivyLicense `json:"Licenses,omitempty"`
}

type trivyLicense struct {
	Severity   string  `json:"Severity"`
	Category   string  `json:"Category"`
	PkgName    string  `json:"PkgName"`
	FilePath   string  `json:"FilePath,omitempty"`
	Name       string  `json:"Name"`
	Confidence float64 `json:"Confidence"`
	Link       string  `json:"Link,omitempty"`
}

// Trivy runs Aqua trivy's license scanner. It scans single files or a whole
// package root in one invocation.
type Trivy struct {
	cmd    *Command
	ignore *Ignore
}

// NewTrivy creates a trivy provider. Empty cmd.Args default to a license
// scan with full-text detection and JSON output.
func NewTrivy(cmd Command, ignore *Ignore) *Trivy {
	if cmd.Binary == "" {
		cmd.Binary = TrivyName
	}
	if len(cmd.Args) == 0 {
		cmd.Args = trivyDefaultArgs
	}
	return &Trivy{cmd: &cmd, ignore: ignore}
}

func (t *Trivy) Name() string { return TrivyName }

// Invoke scans one file and reports every license found in it.
func (t *Trivy) Invoke(ctx context.Context, target core.Target) (*core.Result, error) {
	if t.ignore.Match(target.RelPath) {
		return nil, errors.E(errors.KindUnavailable, "trivy.Invoke", "ignored "+target.RelPath, errors.ErrUnavailable)
	}
	byPath, err := t.run(ctx, target.Path)
	if err != nil {
		return nil, err
	}
	result := &core.Result{Findings: []core.Finding{}}
	for _, findings := range byPath {
		result.Merge(findings)
	}
	return result, nil
}

// InvokePackage scans a package root and returns findings keyed by
// package-relative path. Ignored paths are dropped.
func (t *Trivy) InvokePackage(ctx context.Context, root string) (map[string][]core.Finding, error) {
	byPath, err := t.run(ctx, root)
	if err != nil {
		return nil, err
	}
	for p := range byPath {
		if t.ignore.Match(p) {
			delete(byPath, p)
		}
	}
	return byPath, nil
}

// IsInstalled reports whether the trivy binary runs.
func (t *Trivy) IsInstalled(ctx context.Context) (bool, string, error) {
	return t.cmd.IsInstalled(ctx)
}

func (t *Trivy) run(ctx context.Context, target string) (map[string][]core.Finding, error) {
	out, err := t.cmd.Run(ctx, target)
	if err != nil {
		return nil, err
	}
	return ParseTrivy(out.Stdout)
}

// ParseTrivy reads a trivy JSON report and groups license findings by file
// path. Package-level licenses without a file path are keyed by the result
// target. Paths are cleaned and carry no leading "./".
func ParseTrivy(data []byte) (map[string][]core.Finding, error) {
	byPath := make(map[string][]core.Finding)
	if len(strings.TrimSpace(string(data))) == 0 {
		return byPath, nil
	}
	var report trivyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.E(errors.KindInternal, "providers.ParseTrivy", "decode trivy report", err)
	}

	for _, res := range report.Results {
		for _, lic := range res.Licenses {
			name := strings.TrimSpace(lic.Name)
			if name == "" {
				continue
			}
			p := lic.FilePath
			if p == "" {
				p = res.Target
			}
			p = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "./")

			r := core.Result{Findings: byPath[p]}
			r.Merge([]core.Finding{{ShortName: name}})
			byPath[p] = r.Findings
		}
	}
	return byPath, nil
}
