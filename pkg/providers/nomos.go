package providers

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// NomosName is the name of the FOSSology nomos provider.
const NomosName = "nomos"

const noLicenseFound = "No_license_found"

var nomosLine = regexp.MustCompile(`^File (.+?) contains license\(s\) (.+)$`)

// Nomos runs FOSSology's nomos license scanner against single files.
type Nomos struct {
	cmd    *Command
	ignore *Ignore
	name   string
}

// NewNomos creates a nomos provider. Empty cmd.Args default to "-l {target}".
func NewNomos(cmd Command, ignore *Ignore) *Nomos {
	if len(cmd.Args) == 0 {
		cmd.Args = []string{"-l", TargetPlaceholder}
	}
	return &Nomos{cmd: &cmd, ignore: ignore, name: NomosName}
}

func (n *Nomos) Name() string { return n.name }

// Invoke scans one file.
func (n *Nomos) Invoke(ctx context.Context, target core.Target) (*core.Result, error) {
	if n.ignore.Match(target.RelPath) {
		return nil, errors.E(errors.KindUnavailable, "nomos.Invoke", "ignored "+target.RelPath, errors.ErrUnavailable)
	}
	return n.scan(ctx, target.Path)
}

func (n *Nomos) scan(ctx context.Context, path string) (*core.Result, error) {
	out, err := n.cmd.Run(ctx, path)
	if err != nil {
		return nil, err
	}
	return &core.Result{Findings: ParseNomos(out.Stdout)}, nil
}

// IsInstalled reports whether the nomos binary runs.
func (n *Nomos) IsInstalled(ctx context.Context) (bool, string, error) {
	return n.cmd.IsInstalled(ctx)
}

// ParseNomos extracts license short names from nomos -l output. Names are
// deduplicated in order of appearance; No_license_found is dropped.
func ParseNomos(output []byte) []core.Finding {
	findings := []core.Finding{}
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := nomosLine.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		for _, name := range strings.Split(m[2], ",") {
			name = strings.TrimSpace(name)
			if name == "" || name == noLicenseFound {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			findings = append(findings, core.Finding{ShortName: name})
		}
	}
	return findings
}
