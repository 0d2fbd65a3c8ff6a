// Package scan runs capability providers over the files of a registered
// package and records their findings.
//
// Each (content, provider) pair is scanned at most once unless a rescan is
// forced. Providers run outside any store transaction; the findings of one
// unit and its scan-cache mark are then written in one short transaction.
package scan

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/digest"
	"github.com/exploopio/sbomkit/pkg/errors"
	"github.com/exploopio/sbomkit/pkg/metrics"
	"github.com/exploopio/sbomkit/pkg/register"
	"github.com/exploopio/sbomkit/pkg/store"
)

// Invocation outcomes, used as the status metric label.
const (
	statusOK          = "ok"
	statusFailed      = "failed"
	statusUnavailable = "unavailable"
)

// Registry resolves provider names.
type Registry interface {
	Get(name string) (core.Provider, bool)
	Select(names []string) ([]core.Provider, error)
}

// Options configures a Pipeline.
type Options struct {
	// Workers bounds concurrent file scans (default: 1).
	Workers int

	// Rescan invokes providers even on content they already scanned.
	Rescan bool

	// Limiter throttles provider invocations; nil is unlimited.
	Limiter *rate.Limiter

	Logger  core.Logger
	Metrics metrics.Collector
}

// Stat counts the outcomes of one provider.
type Stat struct {
	Invoked     int `json:"invoked"`
	Cached      int `json:"cached"`
	Unavailable int `json:"unavailable"`
	Failed      int `json:"failed"`
	Findings    int `json:"findings"`
}

// Report summarizes a run per provider.
type Report struct {
	mu        sync.Mutex
	Providers map[string]*Stat `json:"providers"`
}

func newReport() *Report {
	return &Report{Providers: make(map[string]*Stat)}
}

func (r *Report) update(provider string, fn func(*Stat)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.Providers[provider]
	if !ok {
		st = &Stat{}
		r.Providers[provider] = st
	}
	fn(st)
}

// Stat returns a copy of the counts for provider.
func (r *Report) Stat(provider string) Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.Providers[provider]; ok {
		return *st
	}
	return Stat{}
}

// Names returns the providers in the report, sorted.
func (r *Report) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Providers))
	for n := range r.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Pipeline runs providers against registered content.
type Pipeline struct {
	store     *store.Store
	registry  Registry
	registrar *register.Registrar
	opts      Options
	logger    core.Logger
	metrics   metrics.Collector

	mu         sync.Mutex
	scannerIDs map[string]int64
}

// New creates a Pipeline.
func New(s *store.Store, registry Registry, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	logger := core.LoggerOrDefault(opts.Logger)
	m := metrics.OrDefault(opts.Metrics)
	return &Pipeline{
		store:      s,
		registry:   registry,
		registrar:  register.New(s, register.Options{Logger: logger, Metrics: m}),
		opts:       opts,
		logger:     logger,
		metrics:    m,
		scannerIDs: make(map[string]int64),
	}
}

// Run scans package pkgID, whose members live under root, with the named
// providers. Package providers scan the whole root once; the others scan
// each distinct member file, concurrently up to Options.Workers.
func (p *Pipeline) Run(ctx context.Context, pkgID int64, root string, names []string) (*Report, error) {
	const op = "scan.Run"
	providers, err := p.registry.Select(names)
	if err != nil {
		return nil, err
	}

	var members []store.PackageFile
	if err := p.store.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		members, err = tx.PackageFiles(ctx, pkgID)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, op)
	}

	targets := make([]core.Target, 0, len(members))
	seen := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m.FileID]; ok {
			continue
		}
		seen[m.FileID] = struct{}{}
		rel := digest.TrimRel(m.FileName)
		targets = append(targets, core.Target{
			Path:    filepath.Join(root, filepath.FromSlash(rel)),
			RelPath: rel,
			SHA1:    m.SHA1,
			FileID:  m.FileID,
			Members: p,
		})
	}

	// Package providers run before file providers.
	sort.SliceStable(providers, func(i, j int) bool {
		_, pi := providers[i].(core.PackageProvider)
		_, pj := providers[j].(core.PackageProvider)
		return pi && !pj
	})

	report := newReport()
	for _, prov := range providers {
		scannerID, err := p.scannerID(ctx, prov.Name())
		if err != nil {
			return report, err
		}
		if pp, ok := prov.(core.PackageProvider); ok {
			if err := p.scanPackage(ctx, pp, scannerID, pkgID, root, members, report); err != nil {
				return report, err
			}
			continue
		}
		if err := p.scanFiles(ctx, prov, scannerID, targets, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Pipeline) scannerID(ctx context.Context, name string) (int64, error) {
	p.mu.Lock()
	id, ok := p.scannerIDs[name]
	p.mu.Unlock()
	if ok {
		return id, nil
	}
	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		id, err = tx.EnsureScanner(ctx, name)
		return err
	})
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.scannerIDs[name] = id
	p.mu.Unlock()
	return id, nil
}

func (p *Pipeline) scanFiles(ctx context.Context, prov core.Provider, scannerID int64, targets []core.Target, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, target := range targets {
		target := target
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := p.scanFile(gctx, prov, scannerID, target, report)
			if errors.IsUnavailable(err) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// scanFile applies the scan policy to one file: invoke when rescanning or
// not yet done, mark done only when it was not done. Unavailability is never
// marked; any other provider failure is logged and still marked. It returns
// the findings recorded for the file by this provider run, or the stored
// findings when the scan was skipped.
func (p *Pipeline) scanFile(ctx context.Context, prov core.Provider, scannerID int64, target core.Target, report *Report) ([]core.Finding, error) {
	name := prov.Name()

	var done bool
	if err := p.store.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		done, err = tx.IsFileDone(ctx, target.FileID, scannerID)
		return err
	}); err != nil {
		return nil, err
	}

	if done && !p.opts.Rescan {
		p.logger.Info("%s already ran on file %d", name, target.FileID)
		p.metrics.CounterInc(metrics.ScanCacheHits.Name, "provider", name)
		report.update(name, func(s *Stat) { s.Cached++ })
		return p.storedFindings(ctx, target.FileID)
	}

	res, err := p.invoke(ctx, name, func(ctx context.Context) (*core.Result, error) {
		return prov.Invoke(ctx, target)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.IsUnavailable(err) {
			p.logger.Warn("%s unavailable for file %d (%s): %v", name, target.FileID, target.RelPath, err)
			report.update(name, func(s *Stat) { s.Unavailable++ })
			return nil, err
		}
		p.logger.Error("%s failed on file %d (%s): %v", name, target.FileID, target.RelPath, err)
		report.update(name, func(s *Stat) { s.Failed++ })
		res = nil
	} else {
		report.update(name, func(s *Stat) { s.Invoked++ })
	}

	var findings []core.Finding
	if res != nil {
		findings = res.Findings
	}
	added := 0
	err = p.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if added, err = tx.MergeFindings(ctx, target.FileID, findings, name); err != nil {
			return err
		}
		if !done {
			_, err = tx.MarkFilesDone(ctx, []int64{target.FileID}, scannerID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	p.recordFindings(name, added, report)
	return findings, nil
}

// scanPackage runs a package provider over the whole root once per package.
func (p *Pipeline) scanPackage(ctx context.Context, prov core.PackageProvider, scannerID, pkgID int64, root string, members []store.PackageFile, report *Report) error {
	name := prov.Name()

	var done bool
	if err := p.store.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		done, err = tx.IsPackageDone(ctx, pkgID, scannerID)
		return err
	}); err != nil {
		return err
	}
	if done && !p.opts.Rescan {
		p.logger.Info("%s already ran on package %d", name, pkgID)
		p.metrics.CounterInc(metrics.ScanCacheHits.Name, "provider", name)
		report.update(name, func(s *Stat) { s.Cached++ })
		return nil
	}

	var byPath map[string][]core.Finding
	_, err := p.invoke(ctx, name, func(ctx context.Context) (*core.Result, error) {
		var err error
		byPath, err = prov.InvokePackage(ctx, root)
		return nil, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.IsUnavailable(err) {
			p.logger.Warn("%s unavailable for package %d: %v", name, pkgID, err)
			report.update(name, func(s *Stat) { s.Unavailable++ })
			return nil
		}
		p.logger.Error("%s failed on package %d: %v", name, pkgID, err)
		report.update(name, func(s *Stat) { s.Failed++ })
		byPath = nil
	} else {
		report.update(name, func(s *Stat) { s.Invoked++ })
	}

	fileIDs := make(map[string]int64, len(members))
	for _, m := range members {
		fileIDs[digest.TrimRel(m.FileName)] = m.FileID
	}
	paths := make([]string, 0, len(byPath))
	for rel := range byPath {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	added := 0
	err = p.store.WithTx(ctx, func(tx *store.Tx) error {
		added = 0
		for _, rel := range paths {
			fileID, ok := fileIDs[digest.TrimRel(rel)]
			if !ok {
				p.logger.Debug("%s reported %s, which is not a member of package %d", name, rel, pkgID)
				continue
			}
			n, err := tx.MergeFindings(ctx, fileID, byPath[rel], name)
			if err != nil {
				return err
			}
			added += n
		}
		if !done {
			return tx.MarkPackageDone(ctx, pkgID, scannerID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.recordFindings(name, added, report)
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, name string, fn func(context.Context) (*core.Result, error)) (*core.Result, error) {
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	timer := metrics.NewTimer(p.metrics, metrics.ProviderDuration.Name, "provider", name)
	res, err := fn(ctx)
	timer.ObserveDuration()

	status := statusOK
	switch {
	case errors.IsUnavailable(err):
		status = statusUnavailable
	case err != nil:
		status = statusFailed
	}
	p.metrics.CounterInc(metrics.ProviderInvocations.Name, "provider", name, "status", status)
	return res, err
}

func (p *Pipeline) recordFindings(name string, added int, report *Report) {
	if added == 0 {
		return
	}
	p.metrics.CounterAdd(metrics.FindingsMerged.Name, float64(added), "provider", name)
	report.update(name, func(s *Stat) { s.Findings += added })
}

func (p *Pipeline) storedFindings(ctx context.Context, fileID int64) ([]core.Finding, error) {
	var stored []store.LicenseFinding
	if err := p.store.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		stored, err = tx.FileLicenseFindings(ctx, fileID)
		return err
	}); err != nil {
		return nil, err
	}
	findings := make([]core.Finding, 0, len(stored))
	for _, lf := range stored {
		f := core.Finding{ShortName: lf.License.ShortName}
		if lf.ExtractedText != "" {
			text := lf.ExtractedText
			f.Evidence = &text
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ScanMember registers a file found inside another target and scans it with
// the named provider through the same cache. An unavailable provider is
// returned as an error so the outer invocation is not marked either.
func (p *Pipeline) ScanMember(ctx context.Context, provider, path string) ([]core.Finding, error) {
	const op = "scan.ScanMember"
	prov, ok := p.registry.Get(provider)
	if !ok {
		return nil, errors.E(errors.KindInvalidInput, op, "unknown scanner "+provider)
	}
	f, err := p.registrar.RegisterFile(ctx, path, "")
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	scannerID, err := p.scannerID(ctx, provider)
	if err != nil {
		return nil, err
	}
	return p.scanFile(ctx, prov, scannerID, core.Target{
		Path:    path,
		RelPath: filepath.Base(path),
		SHA1:    f.SHA1,
		FileID:  f.ID,
		Members: p,
	}, newReport())
}

var _ core.MemberScanner = (*Pipeline)(nil)
