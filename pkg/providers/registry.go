// Package providers holds the capability providers that report license
// findings for files, and the registry the scan pipeline selects them from.
package providers

import (
	"sort"
	"strings"
	"sync"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// =============================================================================
// Provider Registry
// =============================================================================

// Registry manages registered providers.
type Registry struct {
	providers map[string]core.Provider
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]core.Provider)}
}

// Register adds a provider, replacing any provider of the same name.
func (r *Registry) Register(p core.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (core.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves names in order, dropping duplicates. Any unknown name
// fails the whole selection.
func (r *Registry) Select(names []string) ([]core.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(names))
	selected := make([]core.Provider, 0, len(names))
	var unknown []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		p, ok := r.providers[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, p)
	}
	if len(unknown) > 0 {
		return nil, errors.E(errors.KindInvalidInput, "providers.Select", "unknown scanner(s): "+strings.Join(unknown, ", "))
	}
	return selected, nil
}

// SplitNames splits a comma-separated scanner list.
func SplitNames(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// =============================================================================
// Built-in providers
// =============================================================================

// NewDefaultRegistry registers the built-in providers configured by cfg.
func NewDefaultRegistry(cfg *config.Config, logger core.Logger) (*Registry, error) {
	r := NewRegistry()
	r.Register(Dummy{})

	build := func(name string) (Command, *Ignore, error) {
		sc := cfg.Scanner(name)
		args, err := sc.SplitArgs()
		if err != nil {
			return Command{}, nil, errors.Wrap(err, "providers.NewDefaultRegistry")
		}
		ignore, err := NewIgnore(sc.Ignore)
		if err != nil {
			return Command{}, nil, err
		}
		return Command{
			Binary:  sc.Path,
			Args:    args,
			Timeout: sc.Timeout,
			Logger:  logger,
		}, ignore, nil
	}

	cmd, ignore, err := build(NomosName)
	if err != nil {
		return nil, err
	}
	r.Register(NewNomos(cmd, ignore))

	if cmd, ignore, err = build(NomosDeepName); err != nil {
		return nil, err
	}
	r.Register(NewNomosDeep(cmd, ignore))

	if cmd, ignore, err = build(TrivyName); err != nil {
		return nil, err
	}
	r.Register(NewTrivy(cmd, ignore))

	return r, nil
}
