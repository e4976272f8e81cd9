// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jmcleod/backdrop/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Record)}
}

func (r *Repository) Close() error { return nil }

func (r *Repository) Put(_ context.Context, bucket, key string, rec *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(bucket, key, rec)
}

func (r *Repository) putLocked(bucket, key string, rec *storage.Record) error {
	if _, ok := r.data[bucket]; !ok {
		r.data[bucket] = make(map[string]*storage.Record)
	}
	r.data[bucket][key] = rec.Clone()
	return nil
}

func (r *Repository) Get(_ context.Context, bucket, key string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(bucket, key)
}

func (r *Repository) getLocked(bucket, key string) (*storage.Record, error) {
	b, ok := r.data[bucket]
	if !ok {
		return nil, storage.ErrBucketNotFound
	}
	rec, ok := b[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *Repository) List(_ context.Context, bucket string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.data[bucket]))
	for k := range r.data[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Repository) Delete(_ context.Context, bucket, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(bucket, key)
}

func (r *Repository) deleteLocked(bucket, key string) error {
	b, ok := r.data[bucket]
	if !ok {
		return storage.ErrBucketNotFound
	}
	if _, ok := b[key]; !ok {
		return storage.ErrNotFound
	}
	delete(b, key)
	return nil
}

func (r *Repository) PutCAS(_ context.Context, bucket, key string, expectedVersion uint64, rec *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCASLocked(bucket, key, expectedVersion, rec)
}

func (r *Repository) putCASLocked(bucket, key string, expectedVersion uint64, rec *storage.Record) error {
	existing, err := r.getLocked(bucket, key)
	if err != nil {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		return r.putLocked(bucket, key, rec)
	}
	if expectedVersion == 0 || existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	return r.putLocked(bucket, key, rec)
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(_ context.Context, bucket string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotBucket(bucket)

	tx := &memoryBatchTx{repo: r, bucket: bucket}
	if err := fn(tx); err != nil {
		r.restoreBucket(bucket, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshotBucket(bucket string) map[string]*storage.Record {
	original, ok := r.data[bucket]
	if !ok {
		return nil
	}
	cp := make(map[string]*storage.Record, len(original))
	for k, v := range original {
		cp[k] = v.Clone()
	}
	return cp
}

func (r *Repository) restoreBucket(bucket string, snapshot map[string]*storage.Record) {
	if snapshot == nil {
		delete(r.data, bucket)
	} else {
		r.data[bucket] = snapshot
	}
}

type memoryBatchTx struct {
	repo   *Repository
	bucket string
}

func (tx *memoryBatchTx) Get(key string) (*storage.Record, error) {
	rec, err := tx.repo.getLocked(tx.bucket, key)
	if err == storage.ErrBucketNotFound {
		return nil, storage.ErrNotFound
	}
	return rec, err
}

func (tx *memoryBatchTx) Put(key string, rec *storage.Record) error {
	return tx.repo.putLocked(tx.bucket, key, rec)
}

func (tx *memoryBatchTx) PutCAS(key string, expectedVersion uint64, rec *storage.Record) error {
	return tx.repo.putCASLocked(tx.bucket, key, expectedVersion, rec)
}

func (tx *memoryBatchTx) Delete(key string) error {
	err := tx.repo.deleteLocked(tx.bucket, key)
	if err == storage.ErrBucketNotFound {
		return storage.ErrNotFound
	}
	return err
}
