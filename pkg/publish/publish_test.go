package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/errors"
)

func TestDirSink_Put(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sink := NewDirSink(root)

	require.NoError(t, sink.Put(ctx, "docs/widget.spdx", []byte("SPDXVersion: SPDX-2.0\n")))
	data, err := os.ReadFile(filepath.Join(root, "docs", "widget.spdx"))
	require.NoError(t, err)
	assert.Equal(t, "SPDXVersion: SPDX-2.0\n", string(data))

	require.NoError(t, sink.Put(ctx, "docs/widget.spdx", []byte("v2")))
	data, err = os.ReadFile(filepath.Join(root, "docs", "widget.spdx"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// Names cannot escape the root.
	require.NoError(t, sink.Put(ctx, "../../escape.json", []byte("{}")))
	assert.FileExists(t, filepath.Join(root, "escape.json"))

	err = sink.Put(ctx, " ", []byte("x"))
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))

	entries, err := os.ReadDir(filepath.Join(root, "docs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestNewS3Sink_Validation(t *testing.T) {
	_, err := NewS3Sink(config.S3{}, "")
	assert.Error(t, err)

	_, err = NewS3Sink(config.S3{Endpoint: "localhost:9000", Bucket: "sboms"}, "")
	assert.Error(t, err)

	s, err := NewS3Sink(config.S3{Endpoint: "localhost:9000", Bucket: "sboms", AccessKey: "a", SecretKey: "b"}, "/spdx/")
	require.NoError(t, err)
	assert.Equal(t, "spdx/widget.json", s.Key("widget.json"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/spdx", contentType("a.spdx"))
	assert.Equal(t, "application/pgp-signature", contentType("a.spdx.asc"))
	assert.Equal(t, "application/json", contentType("a.json"))
	assert.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}

type failingSink struct{ calls int }

func (f *failingSink) Put(ctx context.Context, name string, data []byte) error {
	f.calls++
	return errors.ErrUnavailable
}

func TestMulti(t *testing.T) {
	root := t.TempDir()
	failing := &failingSink{}
	m := Multi{NewDirSink(root), failing, NewDirSink(t.TempDir())}

	err := m.Put(context.Background(), "a.json", []byte("{}"))
	assert.True(t, errors.IsUnavailable(err))
	assert.Equal(t, 1, failing.calls)
	assert.FileExists(t, filepath.Join(root, "a.json"))
}

func TestFromConfig(t *testing.T) {
	sink, err := FromConfig(config.Publish{})
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, err = FromConfig(config.Publish{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DirSink{}, sink)

	sink, err = FromConfig(config.Publish{Dir: t.TempDir(), S3: config.S3{
		Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s",
	}})
	require.NoError(t, err)
	assert.Len(t, sink.(Multi), 2)

	_, err = FromConfig(config.Publish{S3: config.S3{Endpoint: "localhost:9000", Bucket: "b"}})
	assert.Error(t, err)
}
