// Package storagetest holds a conformance suite shared by the storage backends.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jmcleod/backdrop/storage"
)

// Run exercises repo against the storage.Repository contract. repo must be
// empty when Run is called.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()
	bucket := "usage"
	rec := &storage.Record{Data: []byte(`{"total_processed":1}`), Version: 1}

	t.Run("PutGet", func(t *testing.T) {
		if err := repo.Put(ctx, bucket, "u1", rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, bucket, "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got.Data, rec.Data) || got.Version != rec.Version {
			t.Errorf("Get returned wrong record: %+v", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(ctx, bucket, "u2", rec) //nolint:errcheck
		keys, err := repo.List(ctx, bucket)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "u1" || keys[1] != "u2" {
			t.Errorf("expected [u1 u2], got %v", keys)
		}
	})

	t.Run("ListNonexistentBucket", func(t *testing.T) {
		keys, err := repo.List(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("List on missing bucket failed: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("expected no keys, got %v", keys)
		}
	})

	t.Run("GetErrors", func(t *testing.T) {
		if _, err := repo.Get(ctx, "nonexistent", "u1"); !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
		if _, err := repo.Get(ctx, bucket, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		if err := repo.PutCAS(ctx, bucket, "cas1", 0, rec); err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}
		if err := repo.PutCAS(ctx, bucket, "cas1", 0, rec); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match", func(t *testing.T) {
		v2 := &storage.Record{Data: []byte("v2"), Version: 2}
		if err := repo.PutCAS(ctx, bucket, "cas1", 1, v2); err != nil {
			t.Fatalf("PutCAS (match) failed: %v", err)
		}
		got, err := repo.Get(ctx, bucket, "cas1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != 2 || string(got.Data) != "v2" {
			t.Errorf("expected v2 record, got %+v", got)
		}
	})

	t.Run("PutCAS version mismatch", func(t *testing.T) {
		stale := &storage.Record{Data: []byte("stale"), Version: 2}
		if err := repo.PutCAS(ctx, bucket, "cas1", 1, stale); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS non-zero on missing", func(t *testing.T) {
		if err := repo.PutCAS(ctx, bucket, "ghost", 3, rec); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := repo.Batch(ctx, bucket, func(tx storage.BatchTx) error {
			cur, err := tx.Get("cas1")
			if err != nil {
				return err
			}
			next := &storage.Record{Data: []byte("v3"), Version: cur.Version + 1}
			if err := tx.PutCAS("cas1", cur.Version, next); err != nil {
				return err
			}
			return tx.Put("b1", rec)
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		got, _ := repo.Get(ctx, bucket, "cas1")
		if got == nil || got.Version != 3 {
			t.Errorf("expected version 3 after batch, got %+v", got)
		}
		if _, err := repo.Get(ctx, bucket, "b1"); err != nil {
			t.Errorf("batch put not visible: %v", err)
		}
	})

	t.Run("BatchRollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Batch(ctx, bucket, func(tx storage.BatchTx) error {
			if err := tx.Put("rolled", rec); err != nil {
				return err
			}
			if err := tx.Delete("b1"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := repo.Get(ctx, bucket, "rolled"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("rolled back put is visible: %v", err)
		}
		if _, err := repo.Get(ctx, bucket, "b1"); err != nil {
			t.Errorf("rolled back delete took effect: %v", err)
		}
	})

	t.Run("BatchGetMissing", func(t *testing.T) {
		err := repo.Batch(ctx, "fresh-bucket", func(tx storage.BatchTx) error {
			_, err := tx.Get("nobody")
			return err
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Batch(ctx, bucket, func(tx storage.BatchTx) error {
					return tx.PutCAS("race", 0, rec)
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("expected exactly one creator, got %d", wins)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, bucket, "u2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, bucket, "u2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(ctx, bucket, "u2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
		if err := repo.Delete(ctx, "nonexistent", "u2"); !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
	})
}
