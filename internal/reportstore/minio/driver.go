// Package minio provides a MinIO implementation of reportstore.Store.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/reportstore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of reportstore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *reportstore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Ping verifies the configured bucket exists and is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.New(errs.ErrKindNotFound, "report bucket does not exist: "+d.bucket)
	}
	return nil
}

// Close is a no-op for MinIO — the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// PutReport marshals the report to JSON and writes it under a
// date-partitioned key.
func (d *Driver) PutReport(ctx context.Context, rep *reportstore.ArchivedReport) (string, error) {
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode report", err)
	}

	key := reportstore.Key(rep.CreatedAt)
	_, err = d.client.PutObject(ctx, d.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		miniogo.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", mapError(err, "failed to store report")
	}
	return key, nil
}

// GetReport loads and decodes a previously archived report.
func (d *Driver) GetReport(ctx context.Context, key string) (*reportstore.ArchivedReport, error) {
	obj, err := d.client.GetObject(ctx, d.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get report")
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, "failed to read report")
	}

	var rep reportstore.ArchivedReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to decode report", err)
	}
	return &rep, nil
}

// PresignGetURL returns a time-limited public download URL for the report.
func (d *Driver) PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := d.client.PresignedGetObject(ctx, d.bucket, key, ttl, nil)
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}
