// Package gcs implements a Google Cloud Storage document store, used when
// the produced skill folder should land in a bucket instead of local disk.
package gcs

import (
	"context"
	"errors"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Store writes documents as objects in one GCS bucket. Authentication is
// handled via Application Default Credentials unless options override it.
type Store struct {
	client *gstorage.Client
	bucket string
	prefix string
}

// Config captures the parameters for the GCS store.
type Config struct {
	// Bucket is the target bucket name.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is an optional object name prefix, e.g. "skills/".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// New creates the store and verifies the bucket is reachable, so bad
// configuration fails at startup rather than mid-run.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// NewWithClient wires an existing client, primarily for tests.
func NewWithClient(client *gstorage.Client, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// Put uploads an object. GCS object writes are atomic: the object becomes
// visible only after a successful Close.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	wc := s.client.Bucket(s.bucket).Object(s.prefix + name).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", name, err)
	}
	return nil
}

// Delete removes an object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(s.prefix + name).Delete(ctx)
	if err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
