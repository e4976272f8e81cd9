// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The ledger_records table uses a composite primary key (bucket, key) that
// mirrors the key space used by the BBolt and in-memory backends. Record data
// is stored as BYTEA and the version as a native BIGINT so compare-and-swap
// checks happen in SQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/backdrop/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ---------------------------------------------------------------------------
// Repository interface implementation
// ---------------------------------------------------------------------------

const upsertSQL = `INSERT INTO ledger_records (bucket, key, data, version)
	 VALUES ($1, $2, $3, $4)
	 ON CONFLICT (bucket, key)
	 DO UPDATE SET data = $3, version = $4, updated_at = now()`

func (s *Store) Put(ctx context.Context, bucket, key string, rec *storage.Record) error {
	_, err := s.pool.Exec(ctx, upsertSQL, bucket, key, rec.Data, int64(rec.Version))
	return err
}

func (s *Store) Get(ctx context.Context, bucket, key string) (*storage.Record, error) {
	rec, err := getRecord(ctx, s.pool, bucket, key, false)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundError(ctx, s.pool, bucket, key)
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM ledger_records WHERE bucket = $1 ORDER BY key`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_records WHERE bucket = $1 AND key = $2`, bucket, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundError(ctx, s.pool, bucket, key)
	}
	return nil
}

func (s *Store) PutCAS(ctx context.Context, bucket, key string, expectedVersion uint64, rec *storage.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := putCASInTx(ctx, tx, bucket, key, expectedVersion, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Batch(ctx context.Context, bucket string, fn func(tx storage.BatchTx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	btx := &pgBatchTx{ctx: ctx, tx: pgTx, bucket: bucket}
	if err := fn(btx); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// BatchTx implementation
// ---------------------------------------------------------------------------

type pgBatchTx struct {
	ctx    context.Context
	tx     pgx.Tx
	bucket string
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

// Get locks the row for the rest of the transaction.
func (btx *pgBatchTx) Get(key string) (*storage.Record, error) {
	return getRecord(btx.ctx, btx.tx, btx.bucket, key, true)
}

func (btx *pgBatchTx) Put(key string, rec *storage.Record) error {
	_, err := btx.tx.Exec(btx.ctx, upsertSQL, btx.bucket, key, rec.Data, int64(rec.Version))
	return err
}

func (btx *pgBatchTx) PutCAS(key string, expectedVersion uint64, rec *storage.Record) error {
	return putCASInTx(btx.ctx, btx.tx, btx.bucket, key, expectedVersion, rec)
}

func (btx *pgBatchTx) Delete(key string) error {
	tag, err := btx.tx.Exec(btx.ctx,
		`DELETE FROM ledger_records WHERE bucket = $1 AND key = $2`, btx.bucket, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// querier abstracts both *pgxpool.Pool and pgx.Tx for shared queries.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRecord(ctx context.Context, q querier, bucket, key string, forUpdate bool) (*storage.Record, error) {
	query := `SELECT data, version FROM ledger_records WHERE bucket = $1 AND key = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		rec     storage.Record
		version int64
	)
	err := q.QueryRow(ctx, query, bucket, key).Scan(&rec.Data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Version = uint64(version)
	return &rec, nil
}

// putCASInTx performs a compare-and-swap put within an existing transaction.
// Creation uses ON CONFLICT DO NOTHING so two concurrent creators race on the
// primary key rather than on a unique-violation error.
func putCASInTx(ctx context.Context, tx pgx.Tx, bucket, key string, expectedVersion uint64, rec *storage.Record) error {
	if expectedVersion == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO ledger_records (bucket, key, data, version)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (bucket, key) DO NOTHING`,
			bucket, key, rec.Data, int64(rec.Version))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrCASFailed
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE ledger_records SET data = $3, version = $4, updated_at = now()
		 WHERE bucket = $1 AND key = $2 AND version = $5`,
		bucket, key, rec.Data, int64(rec.Version), int64(expectedVersion))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCASFailed
	}
	return nil
}

// notFoundError determines whether a missing record is due to a missing
// bucket or a missing key within an existing bucket.
func notFoundError(ctx context.Context, q querier, bucket, key string) error {
	var exists bool
	_ = q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_records WHERE bucket = $1 LIMIT 1)`,
		bucket).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", bucket, storage.ErrBucketNotFound)
	}
	return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
}
