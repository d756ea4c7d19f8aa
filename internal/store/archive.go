package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"monthlyload/internal/config"
)

var _ Archiver = (*ObjectArchive)(nil)

// ObjectArchive uploads snapshots to an S3-compatible bucket.
type ObjectArchive struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectArchive builds a MinIO client from cfg. No request is made until
// Archive is called; the bucket must already exist.
func NewObjectArchive(cfg config.Archive) (*ObjectArchive, error) {
	if !cfg.Enabled() {
		return nil, errors.New("archive endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &ObjectArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Archive uploads the snapshot file to <bucket>/<prefix>/<file name>.
func (a *ObjectArchive) Archive(ctx context.Context, snap Snapshot) (string, error) {
	key := a.objectKey(snap.Path)
	opts := minio.PutObjectOptions{
		ContentType: snap.Format.ContentType(),
		UserMetadata: map[string]string{
			"captured-at": snap.CapturedAt.UTC().Format(time.RFC3339),
		},
	}
	if _, err := a.client.FPutObject(ctx, a.bucket, key, snap.Path, opts); err != nil {
		return "", fmt.Errorf("uploading %s to %s/%s: %w", snap.Path, a.bucket, key, err)
	}
	return key, nil
}

func (a *ObjectArchive) objectKey(p string) string {
	name := filepath.Base(p)
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
