package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/backdrop/config"
	"github.com/jmcleod/backdrop/storage"
	bboltstorage "github.com/jmcleod/backdrop/storage/bbolt"
	"github.com/jmcleod/backdrop/storage/memory"
	"github.com/jmcleod/backdrop/storage/postgres"
)

const ledgerFile = "ledger.db"

// openRepository opens the ledger storage backend named by cfg. A readOnly
// bbolt ledger gives up after a second if the server holds the file lock.
func openRepository(ctx context.Context, cfg config.StorageConfig, readOnly bool) (storage.Repository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewRepository(), nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres ledger: %w", err)
		}
		return repo, nil
	default:
		var opts *bbolt.Options
		if readOnly {
			opts = &bbolt.Options{ReadOnly: true, Timeout: time.Second}
		} else if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, ledgerFile), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger storage: %w", err)
		}
		return repo, nil
	}
}
