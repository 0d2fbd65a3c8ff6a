package providers

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/exploopio/sbomkit/pkg/archive"
	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// NomosDeepName is the name of the archive-unpacking nomos provider.
const NomosDeepName = "nomos_deep"

// NomosDeep behaves like Nomos but unpacks archives and scans their members.
// All licenses found inside an archive are reported for the archive itself.
// Members go through Target.Members when set, so each inner file is
// registered and cached under the nomos provider. Members nomos cannot scan
// are left out; the archive is unavailable only when every member is.
type NomosDeep struct {
	*Nomos
}

// NewNomosDeep creates a nomos_deep provider.
func NewNomosDeep(cmd Command, ignore *Ignore) *NomosDeep {
	n := NewNomos(cmd, ignore)
	n.name = NomosDeepName
	return &NomosDeep{Nomos: n}
}

// Invoke scans one file, descending into it when it is an archive.
func (n *NomosDeep) Invoke(ctx context.Context, target core.Target) (*core.Result, error) {
	const op = "nomos_deep.Invoke"
	if n.ignore.Match(target.RelPath) {
		return nil, errors.E(errors.KindUnavailable, op, "ignored "+target.RelPath, errors.ErrUnavailable)
	}
	if !archive.IsArchive(target.Path) {
		return n.scan(ctx, target.Path)
	}

	dir, cleanup, err := archive.TempExtract(ctx, target.Path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var members []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			members = append(members, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.E(errors.KindContent, op, err)
	}

	result := &core.Result{Findings: []core.Finding{}}
	skipped := 0
	for _, p := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var findings []core.Finding
		if target.Members != nil {
			findings, err = target.Members.ScanMember(ctx, NomosName, p)
		} else {
			var r *core.Result
			if r, err = n.scan(ctx, p); err == nil {
				findings = r.Findings
			}
		}
		if errors.IsUnavailable(err) {
			rel, _ := filepath.Rel(dir, p)
			core.LoggerOrDefault(n.cmd.Logger).Debug("%s: skipping member %s of %s: %v", NomosDeepName, rel, target.RelPath, err)
			skipped++
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		result.Merge(findings)
	}
	if skipped > 0 && skipped == len(members) {
		return nil, errors.E(errors.KindUnavailable, op, "no scannable member in "+target.RelPath, errors.ErrUnavailable)
	}
	return result, nil
}
