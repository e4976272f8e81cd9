package bbolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/backdrop/storage"
	"github.com/jmcleod/backdrop/storage/storagetest"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "ledger-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStorage(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	storagetest.Run(t, NewRepository(db))
}

func TestBBoltStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Put(ctx, "usage", "u1", &storage.Record{Data: []byte("persisted"), Version: 4}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "usage", "u1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Data) != "persisted" || got.Version != 4 {
		t.Errorf("unexpected record after reopen: %+v", got)
	}
}

func TestBBoltStorage_CanceledContext(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	s := NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "usage", "u1", &storage.Record{}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
