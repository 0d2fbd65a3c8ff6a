// Package mocks provides mock implementations and fixtures for testing.
package mocks

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/filetype"
	"github.com/exploopio/sbomkit/pkg/publish"
	"github.com/exploopio/sbomkit/pkg/relationship"
	"github.com/exploopio/sbomkit/pkg/store"
)

// =============================================================================
// Mock Provider
// =============================================================================

// MockProvider is a counting core.Provider. It is safe for concurrent use.
type MockProvider struct {
	NameVal string

	// InvokeFn is called when Invoke is invoked; nil returns an empty result.
	InvokeFn func(ctx context.Context, target core.Target) (*core.Result, error)

	mu          sync.Mutex
	InvokeCalls []core.Target
}

func (m *MockProvider) Name() string { return m.NameVal }

func (m *MockProvider) Invoke(ctx context.Context, target core.Target) (*core.Result, error) {
	m.mu.Lock()
	m.InvokeCalls = append(m.InvokeCalls, target)
	m.mu.Unlock()
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, target)
	}
	return &core.Result{}, nil
}

// Calls returns the number of Invoke calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InvokeCalls)
}

// CallsFor returns the number of Invoke calls for the given file id.
func (m *MockProvider) CallsFor(fileID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.InvokeCalls {
		if t.FileID == fileID {
			n++
		}
	}
	return n
}

var _ core.Provider = (*MockProvider)(nil)

// =============================================================================
// Mock Package Provider
// =============================================================================

// MockPackageProvider is a counting core.PackageProvider.
type MockPackageProvider struct {
	MockProvider

	// InvokePackageFn is called when InvokePackage is invoked; nil returns
	// no findings.
	InvokePackageFn func(ctx context.Context, root string) (map[string][]core.Finding, error)

	pmu          sync.Mutex
	PackageCalls []string
}

func (m *MockPackageProvider) InvokePackage(ctx context.Context, root string) (map[string][]core.Finding, error) {
	m.pmu.Lock()
	m.PackageCalls = append(m.PackageCalls, root)
	m.pmu.Unlock()
	if m.InvokePackageFn != nil {
		return m.InvokePackageFn(ctx, root)
	}
	return map[string][]core.Finding{}, nil
}

var _ core.PackageProvider = (*MockPackageProvider)(nil)

// =============================================================================
// Mock Sink
// =============================================================================

// MockSink records published objects in memory.
type MockSink struct {
	PutFn func(ctx context.Context, name string, data []byte) error

	mu      sync.Mutex
	Objects map[string][]byte
}

func (m *MockSink) Put(ctx context.Context, name string, data []byte) error {
	if m.PutFn != nil {
		if err := m.PutFn(ctx, name, data); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[name] = append([]byte(nil), data...)
	return nil
}

var _ publish.Sink = (*MockSink)(nil)

// =============================================================================
// Store fixture
// =============================================================================

// InitOptions returns the seed data used by sbomkit databases.
func InitOptions(creator string) store.InitOptions {
	types := make([]string, len(filetype.All))
	for i, t := range filetype.All {
		types[i] = string(t)
	}
	return store.InitOptions{
		FileTypes:         types,
		RelationshipTypes: relationship.Types,
		DefaultCreator:    store.Creator{Type: store.CreatorTool, Name: creator},
	}
}

// NewStore opens an initialized SQLite store in a temporary directory. It is
// closed when the test ends.
func NewStore(tb testing.TB) *store.Store {
	tb.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{
		DSN:    filepath.Join(tb.TempDir(), "sbomkit.db"),
		Logger: &core.NopLogger{},
	})
	if err != nil {
		tb.Fatalf("open store: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	if err := s.Init(ctx, InitOptions("sbomkit-test")); err != nil {
		tb.Fatalf("init store: %v", err)
	}
	return s
}
