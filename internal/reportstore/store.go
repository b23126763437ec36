// Package reportstore defines the archive interface for analysis reports.
//
// All providers (MinIO today, any S3-compatible backend tomorrow) implement
// the Store interface. Callers depend only on this package — never on a
// specific provider package.
package reportstore

import (
	"context"
	"fmt"
	"time"
)

// ArchivedReport is one persisted analysis run: the question, the accepted
// query, and what the analyzer produced for it.
type ArchivedReport struct {
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Table     string    `json:"table"`
	Report    string    `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the interface all report archive providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// PutReport persists the report and returns the object key it was
	// stored under.
	PutReport(ctx context.Context, rep *ArchivedReport) (string, error)

	// GetReport loads a previously archived report by its object key.
	GetReport(ctx context.Context, key string) (*ArchivedReport, error)

	// PresignGetURL returns a time-limited URL for downloading the raw
	// report object without credentials.
	PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config holds the settings needed to connect to a report archive backend.
type Config struct {
	// Endpoint is the host:port of the storage server.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Bucket is the bucket all reports are written to.
	Bucket string
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey, bucket string) *Config {
	return &Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
	}
}

// Key builds the date-partitioned object key a report created at t is
// stored under.
func Key(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("reports/%04d/%02d/%02d/%d.json",
		t.Year(), t.Month(), t.Day(), t.UnixNano())
}
