// Package publish copies rendered documents to a directory or an
// S3-compatible bucket.
package publish

import (
	"bytes"
	"context"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/exploopio/sbomkit/pkg/config"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// Sink stores a named object.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// cleanName rejects names that are empty or climb out of the sink root.
func cleanName(op, name string) (string, error) {
	n := strings.TrimLeft(path.Clean("/"+strings.TrimSpace(filepath.ToSlash(name))), "/")
	if n == "" || n == "." {
		return "", errors.E(errors.KindInvalidInput, op, "object name is required")
	}
	return n, nil
}

// =============================================================================
// Directory sink
// =============================================================================

// DirSink writes objects below a local directory.
type DirSink struct {
	Root string
}

// NewDirSink creates a sink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Root: dir}
}

// Put writes data to Root/name through a temporary file and rename.
func (d *DirSink) Put(ctx context.Context, name string, data []byte) error {
	const op = "publish.DirSink.Put"
	n, err := cleanName(op, name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.Root, filepath.FromSlash(n))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".publish-*")
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.E(errors.KindInternal, op, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	return nil
}

// =============================================================================
// S3 sink
// =============================================================================

// S3Sink uploads objects to a bucket, creating it on first use.
type S3Sink struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3Sink creates a sink from cfg. Object names are placed below prefix.
func NewS3Sink(cfg config.S3, prefix string) (*S3Sink, error) {
	const op = "publish.NewS3Sink"
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.E(errors.KindInvalidInput, op, "s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.E(errors.KindInvalidInput, op, "s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.E(errors.KindInvalidInput, op, "s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, op, "init s3 client", err)
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Key returns the object key for name.
func (s *S3Sink) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads data under the prefixed name.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) error {
	const op = "publish.S3Sink.Put"
	n, err := cleanName(op, name)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return errors.E(errors.KindUnavailable, op, "ensure bucket", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.Key(n), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(n),
	})
	if err != nil {
		return errors.E(errors.KindUnavailable, op, err)
	}
	return nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".spdx":
		return "text/spdx"
	case ".asc":
		return "application/pgp-signature"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// =============================================================================
// Fan-out
// =============================================================================

// Multi writes to every sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Put(ctx context.Context, name string, data []byte) error {
	for _, s := range m {
		if err := s.Put(ctx, name, data); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig builds the sinks configured in cfg. It returns nil when no
// sink is configured.
func FromConfig(cfg config.Publish) (Sink, error) {
	var sinks Multi
	if cfg.Dir != "" {
		sinks = append(sinks, NewDirSink(cfg.Dir))
	}
	if cfg.S3.Enabled() {
		s3, err := NewS3Sink(cfg.S3, "")
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
