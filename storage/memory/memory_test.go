package memory

import (
	"context"
	"testing"

	"github.com/jmcleod/backdrop/storage"
	"github.com/jmcleod/backdrop/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, NewRepository())
}

func TestMemoryRepository_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	if err := repo.Put(ctx, "usage", "u1", &storage.Record{Data: []byte("abc"), Version: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := repo.Get(ctx, "usage", "u1")
	got.Data[0] = 'X'
	got2, _ := repo.Get(ctx, "usage", "u1")
	if got2.Data[0] == 'X' {
		t.Error("Memory repository should return clones of records")
	}
}

func TestMemoryRepository_BatchRollbackRemovesNewBucket(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	_ = repo.Batch(ctx, "fresh", func(tx storage.BatchTx) error {
		tx.Put("k", &storage.Record{Data: []byte("v")}) //nolint:errcheck
		return storage.ErrCASFailed
	})
	if _, err := repo.Get(ctx, "fresh", "k"); err != storage.ErrBucketNotFound {
		t.Errorf("expected ErrBucketNotFound, got %v", err)
	}
}
