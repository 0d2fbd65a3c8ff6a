package providers

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// fakeBinary writes an executable shell script and returns its path.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func names(findings []core.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ShortName
	}
	return out
}

func TestParseNomos(t *testing.T) {
	out := []byte(`File main.c contains license(s) GPL-2.0,LGPL-2.1
File README contains license(s) No_license_found
some unrelated banner
File weird name.c contains license(s) MIT,GPL-2.0
`)
	assert.Equal(t, []string{"GPL-2.0", "LGPL-2.1", "MIT"}, names(ParseNomos(out)))

	empty := ParseNomos([]byte("File x contains license(s) No_license_found\n"))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestParseTrivy(t *testing.T) {
	data := []byte(`{
  "SchemaVersion": 2,
  "ArtifactName": "/src/pkg",
  "Results": [
    {"Target": "LICENSE", "Class": "license-file",
     "Licenses": [{"Name": "MIT", "FilePath": "LICENSE", "Confidence": 1.0, "Category": "notice"}]},
    {"Target": "src/a.go", "Class": "license-file",
     "Licenses": [{"Name": "Apache-2.0", "FilePath": "./src/a.go"}, {"Name": "MIT", "FilePath": "src/a.go"}, {"Name": "Apache-2.0", "FilePath": "src/a.go"}]},
    {"Target": "go.mod", "Class": "lang-pkgs",
     "Licenses": [{"Name": "BSD-3-Clause", "PkgName": "golang.org/x/sys"}]},
    {"Target": "empty", "Class": "license-file", "Licenses": [{"Name": " "}]}
  ]
}`)
	byPath, err := ParseTrivy(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"MIT"}, names(byPath["LICENSE"]))
	assert.Equal(t, []string{"Apache-2.0", "MIT"}, names(byPath["src/a.go"]))
	assert.Equal(t, []string{"BSD-3-Clause"}, names(byPath["go.mod"]))
	assert.NotContains(t, byPath, "empty")

	_, err = ParseTrivy([]byte("{not json"))
	assert.Error(t, err)

	none, err := ParseTrivy(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIgnore(t *testing.T) {
	ig, err := NewIgnore([]string{"*.class", "vendor/**", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.class", "vendor/**"}, ig.Patterns())

	tests := map[string]bool{
		"./Main.class":      true,
		"./a/b/Main.class":  true,
		"vendor/x/y.go":     true,
		"./src/vendor/x.go": false,
		"./src/main.go":     false,
		"./Main.class.txt":  false,
	}
	for path, want := range tests {
		assert.Equal(t, want, ig.Match(path), path)
	}

	var zero *Ignore
	assert.False(t, zero.Match("anything"))

	_, err = NewIgnore([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestCommand_BuildArgs(t *testing.T) {
	c := &Command{Args: []string{"-l", "{target}"}}
	assert.Equal(t, []string{"-l", "/tmp/f"}, c.BuildArgs("/tmp/f"))

	c = &Command{Args: []string{"--json"}}
	assert.Equal(t, []string{"--json", "/tmp/f"}, c.BuildArgs("/tmp/f"))

	c = &Command{Args: []string{"--path={target}"}}
	assert.Equal(t, []string{"--path=/tmp/f"}, c.BuildArgs("/tmp/f"))
}

func TestCommand_Run(t *testing.T) {
	ctx := context.Background()

	ok := &Command{Binary: fakeBinary(t, `echo "arg:$1"`)}
	out, err := ok.Run(ctx, "/some/file")
	require.NoError(t, err)
	assert.Equal(t, "arg:/some/file\n", string(out.Stdout))

	failing := &Command{Binary: fakeBinary(t, "echo boom >&2; exit 3")}
	_, err = failing.Run(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, errors.KindInternal, errors.GetKind(err))
	assert.Contains(t, err.Error(), "boom")

	tolerated := &Command{Binary: failing.Binary, OKExitCodes: []int{0, 3}}
	out, err = tolerated.Run(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)

	missing := &Command{Binary: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err = missing.Run(ctx, "x")
	assert.True(t, errors.IsUnavailable(err), "got %v", err)

	slow := &Command{Binary: fakeBinary(t, "exec sleep 5"), Timeout: 50 * time.Millisecond}
	_, err = slow.Run(ctx, "x")
	assert.Equal(t, errors.KindTimeout, errors.GetKind(err), "got %v", err)
}

func TestCommand_IsInstalled(t *testing.T) {
	ctx := context.Background()
	c := &Command{Binary: fakeBinary(t, `echo "fake 1.2.3"; echo extra`)}
	ok, version, err := c.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fake 1.2.3", version)

	c = &Command{Binary: filepath.Join(t.TempDir(), "nope")}
	ok, _, err = c.IsInstalled(ctx)
	assert.False(t, ok)
	assert.Error(t, err)
}

const fakeNomos = `
case "$2" in
  *gpl*) echo "File $(basename "$2") contains license(s) GPL-2.0" ;;
  *mit*) echo "File $(basename "$2") contains license(s) MIT,No_license_found" ;;
  *)     echo "File $(basename "$2") contains license(s) No_license_found" ;;
esac
`

func TestNomos_Invoke(t *testing.T) {
	ctx := context.Background()
	ignore, err := NewIgnore([]string{"*.class"})
	require.NoError(t, err)
	n := NewNomos(Command{Binary: fakeBinary(t, fakeNomos)}, ignore)
	assert.Equal(t, NomosName, n.Name())

	res, err := n.Invoke(ctx, core.Target{Path: "/src/gpl.c", RelPath: "gpl.c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GPL-2.0"}, res.ShortNames())

	res, err = n.Invoke(ctx, core.Target{Path: "/src/plain.txt", RelPath: "plain.txt"})
	require.NoError(t, err)
	assert.NotNil(t, res.Findings)
	assert.Empty(t, res.Findings)

	_, err = n.Invoke(ctx, core.Target{Path: "/src/A.class", RelPath: "A.class"})
	assert.True(t, errors.IsUnavailable(err))
}

type memberStub struct {
	mu    sync.Mutex
	paths []string
	inner core.Provider
}

func (m *memberStub) ScanMember(ctx context.Context, provider, path string) ([]core.Finding, error) {
	m.mu.Lock()
	m.paths = append(m.paths, filepath.Base(path))
	m.mu.Unlock()
	if provider != NomosName {
		return nil, errors.New("unexpected provider " + provider)
	}
	res, err := m.inner.Invoke(ctx, core.Target{Path: path, RelPath: filepath.Base(path)})
	if err != nil {
		return nil, err
	}
	return res.Findings, nil
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestNomosDeep_Archive(t *testing.T) {
	ctx := context.Background()
	bin := fakeBinary(t, fakeNomos)
	deep := NewNomosDeep(Command{Binary: bin}, nil)
	assert.Equal(t, NomosDeepName, deep.Name())

	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"bundle/gpl.c":   "gpl\n",
		"bundle/mit.c":   "mit\n",
		"bundle/none.md": "none\n",
	})

	stub := &memberStub{inner: NewNomos(Command{Binary: bin}, nil)}
	res, err := deep.Invoke(ctx, core.Target{Path: archivePath, RelPath: "bundle.tar.gz", Members: stub})
	require.NoError(t, err)
	assert.Equal(t, []string{"GPL-2.0", "MIT"}, res.ShortNames())

	sort.Strings(stub.paths)
	assert.Equal(t, []string{"gpl.c", "mit.c", "none.md"}, stub.paths)

	// Without a member scanner the members are scanned directly.
	res, err = deep.Invoke(ctx, core.Target{Path: archivePath, RelPath: "bundle.tar.gz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GPL-2.0", "MIT"}, res.ShortNames())

	// Plain files behave like nomos.
	res, err = deep.Invoke(ctx, core.Target{Path: "/x/mit.c", RelPath: "mit.c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT"}, res.ShortNames())
}

func TestNomosDeep_UnavailableMembers(t *testing.T) {
	ctx := context.Background()
	bin := fakeBinary(t, fakeNomos)
	deep := NewNomosDeep(Command{Binary: bin}, nil)
	ignore, err := NewIgnore([]string{"*.class"})
	require.NoError(t, err)
	stub := &memberStub{inner: NewNomos(Command{Binary: bin}, ignore)}

	mixed := filepath.Join(t.TempDir(), "mixed.tar.gz")
	writeTarGz(t, mixed, map[string]string{
		"mixed/mit.c":   "mit\n",
		"mixed/A.class": "bytecode\n",
	})
	res, err := deep.Invoke(ctx, core.Target{Path: mixed, RelPath: "mixed.tar.gz", Members: stub})
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT"}, res.ShortNames())

	classes := filepath.Join(t.TempDir(), "classes.tar.gz")
	writeTarGz(t, classes, map[string]string{
		"classes/A.class": "a\n",
		"classes/B.class": "b\n",
	})
	_, err = deep.Invoke(ctx, core.Target{Path: classes, RelPath: "classes.tar.gz", Members: stub})
	assert.True(t, errors.IsUnavailable(err), "got %v", err)

	// The archive itself matching the ignore list skips it outright.
	deepIgnore, err := NewIgnore([]string{"*.tar.gz"})
	require.NoError(t, err)
	_, err = NewNomosDeep(Command{Binary: bin}, deepIgnore).
		Invoke(ctx, core.Target{Path: mixed, RelPath: "mixed.tar.gz", Members: stub})
	assert.True(t, errors.IsUnavailable(err), "got %v", err)
}

func TestTrivy_InvokePackage(t *testing.T) {
	ctx := context.Background()
	report := `{"Results":[{"Target":"LICENSE","Class":"license-file","Licenses":[{"Name":"MIT","FilePath":"LICENSE"}]},` +
		`{"Target":"lib/x.jar","Class":"license-file","Licenses":[{"Name":"Apache-2.0","FilePath":"lib/x.jar"}]}]}`
	bin := fakeBinary(t, "cat <<'EOF'\n"+report+"\nEOF\n")
	ignore, err := NewIgnore([]string{"*.jar"})
	require.NoError(t, err)
	tr := NewTrivy(Command{Binary: bin}, ignore)

	byPath, err := tr.InvokePackage(ctx, "/src")
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT"}, names(byPath["LICENSE"]))
	assert.NotContains(t, byPath, "lib/x.jar")

	res, err := tr.Invoke(ctx, core.Target{Path: "/src/LICENSE", RelPath: "LICENSE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apache-2.0", "MIT"}, res.ShortNames())

	var _ core.PackageProvider = tr
	var _ core.InstallChecker = tr
}

func TestDummy(t *testing.T) {
	res, err := Dummy{}.Invoke(context.Background(), core.Target{})
	require.NoError(t, err)
	assert.NotNil(t, res.Findings)
	assert.Empty(t, res.Findings)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(Dummy{})
	r.Register(NewNomos(Command{Binary: "nomossa"}, nil))

	assert.Equal(t, []string{DummyName, NomosName}, r.List())

	p, ok := r.Get(NomosName)
	require.True(t, ok)
	assert.Equal(t, NomosName, p.Name())
	_, ok = r.Get("missing")
	assert.False(t, ok)

	selected, err := r.Select([]string{"nomos", "dummy", "nomos", " "})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, NomosName, selected[0].Name())
	assert.Equal(t, DummyName, selected[1].Name())

	_, err = r.Select([]string{"nomos", "scancode"})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))
	assert.Contains(t, err.Error(), "scancode")
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"nomos", "trivy"}, SplitNames(" nomos, ,trivy"))
	assert.Nil(t, SplitNames(""))
}

func TestNewDefaultRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scanners[NomosName] = config.ScannerConfig{Path: "/opt/nomossa", Args: "-l {target}", Ignore: []string{"*.class"}}

	r, err := NewDefaultRegistry(cfg, &core.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, []string{DummyName, NomosName, NomosDeepName, TrivyName}, r.List())

	p, _ := r.Get(NomosName)
	n := p.(*Nomos)
	assert.Equal(t, "/opt/nomossa", n.cmd.Binary)
	assert.Equal(t, []string{"-l", "{target}"}, n.cmd.Args)
	assert.True(t, n.ignore.Match("./x/Y.class"))

	cfg.Scanners[TrivyName] = config.ScannerConfig{Ignore: []string{"[bad"}}
	_, err = NewDefaultRegistry(cfg, nil)
	assert.Error(t, err)
}
