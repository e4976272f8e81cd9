// Package storage provides the key/value abstraction behind the usage ledger.
//
// Records live in named buckets and carry a version number that callers use
// for compare-and-swap updates. Backends: memory, bbolt and postgres.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBucketNotFound is returned when a bucket has never been written.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Record is an opaque versioned value.
type Record struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{Data: append([]byte(nil), r.Data...), Version: r.Version}
}

// BatchTx provides reads and writes within one atomic transaction.
// The bucket is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(key string) (*Record, error)
	Put(key string, rec *Record) error
	// PutCAS writes rec only if the stored version equals expectedVersion.
	// An expectedVersion of 0 means the record must not exist yet.
	PutCAS(key string, expectedVersion uint64, rec *Record) error
	Delete(key string) error
}

// Repository defines the interface for record storage.
type Repository interface {
	Put(ctx context.Context, bucket, key string, rec *Record) error
	Get(ctx context.Context, bucket, key string) (*Record, error)
	List(ctx context.Context, bucket string) ([]string, error)
	Delete(ctx context.Context, bucket, key string) error
	PutCAS(ctx context.Context, bucket, key string, expectedVersion uint64, rec *Record) error
	// Batch runs fn in a transaction. If fn returns an error nothing is written.
	Batch(ctx context.Context, bucket string, fn func(tx BatchTx) error) error
	Close() error
}
