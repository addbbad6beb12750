// Package archivemirror implements an optional off-box copy of
// archived artifacts to an S3-compatible object store, driven from the
// Send Worker's archive step right after the local hardlink-or-copy
// succeeds (SPEC_FULL.md §4.8). Mirror failures are logged but never
// change the LogRecord written for a delivery — the local
// archive_subpath remains the only source of truth.
package archivemirror

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Ref is recorded alongside the local archive_subpath when mirroring
// succeeds (SPEC_FULL.md §3 ArchiveMirrorRef).
type Ref struct {
	Bucket string
	Key    string
	ETag   string
}

// Mirror uploads archived files to an S3-compatible bucket.
type Mirror struct {
	client *minio.Client
	bucket string
}

// Config configures a Mirror's S3-compatible endpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// New constructs a Mirror from cfg.
func New(cfg Config) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archivemirror: new client: %w", err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the local file at localPath to <subpath>/<filename> in
// the configured bucket, mirroring the same relative layout the local
// archive root uses (spec.md §4.4's archive_subpath). It is meant to
// be called strictly after the local archive link/copy succeeds.
func (m *Mirror) Put(ctx context.Context, localPath, subpath, filename string) (Ref, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Ref{}, fmt.Errorf("archivemirror: stat %s: %w", localPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return Ref{}, fmt.Errorf("archivemirror: open %s: %w", localPath, err)
	}
	defer f.Close()

	key := path.Join(subpath, filename)
	uploadInfo, err := m.client.PutObject(ctx, m.bucket, key, f, info.Size(), minio.PutObjectOptions{})
	if err != nil {
		return Ref{}, fmt.Errorf("archivemirror: put %s/%s: %w", m.bucket, key, err)
	}

	return Ref{Bucket: m.bucket, Key: key, ETag: uploadInfo.ETag}, nil
}

// EnsureBucket creates the configured bucket if it doesn't already
// exist, idempotently.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("archivemirror: bucket exists check: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archivemirror: make bucket %s: %w", m.bucket, err)
	}
	return nil
}
