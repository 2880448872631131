// Package storage defines the interface for the document store that holds
// the produced skill folder. The abstraction keeps the reconciler
// independent of where documents land: local filesystem, memory, or a cloud
// bucket.
package storage

import "context"

// Store persists rendered documents under path-like names.
type Store interface {
	// Put writes an object, replacing any previous version. The write is
	// atomic: readers never observe a partially written object.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes an object. Deleting a missing object is not an error,
	// which keeps replayed reconciliations idempotent.
	Delete(ctx context.Context, name string) error
}

// NoOp is a store that discards everything. Useful for dry runs where
// content is fetched and classified but nothing is written.
type NoOp struct{}

// Put does nothing and always succeeds.
func (NoOp) Put(context.Context, string, []byte) error { return nil }

// Delete does nothing and always succeeds.
func (NoOp) Delete(context.Context, string) error { return nil }
