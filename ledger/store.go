package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/jmcleod/backdrop/storage"
)

// Bucket is the repository bucket holding usage records keyed by user id.
const Bucket = "usage"

const maxCASAttempts = 5

// ErrEmptyUserID is returned when an operation is given an empty user id.
var ErrEmptyUserID = errors.New("empty user id")

// Store records usage events on top of a storage.Repository. Each event is a
// single compare-and-swap on the user's record inside one batch, so readers
// never observe a partially written record.
type Store struct {
	repo   storage.Repository
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp events.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store persisting to repo.
func NewStore(repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ledger")
	return s
}

// Clock returns the clock used by the store.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// RecordEvent appends a photo_processed event for userID.
func (s *Store) RecordEvent(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	ev := Event{Timestamp: s.clock.Now(), Type: EventPhotoProcessed}

	var err error
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		err = s.repo.Batch(ctx, Bucket, func(tx storage.BatchTx) error {
			return recordInTx(tx, userID, ev)
		})
		if !errors.Is(err, storage.ErrCASFailed) {
			break
		}
		s.logger.Debug("usage record changed concurrently, retrying",
			"user_id", userID, "attempt", attempt)
	}
	if err != nil {
		return fmt.Errorf("recording usage for %s: %w", userID, err)
	}
	return nil
}

func recordInTx(tx storage.BatchTx, userID string, ev Event) error {
	var (
		rec      UsageRecord
		expected uint64
	)
	cur, err := tx.Get(userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(cur.Data, &rec); err != nil {
			return fmt.Errorf("decoding usage record: %w", err)
		}
		expected = cur.Version
	}

	rec.apply(ev)
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	return tx.PutCAS(userID, expected, &storage.Record{Data: data, Version: expected + 1})
}

// Read returns the usage record of userID. It returns an error wrapping
// storage.ErrNotFound when the user has never been recorded.
func (s *Store) Read(ctx context.Context, userID string) (*UsageRecord, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	raw, err := s.repo.Get(ctx, Bucket, userID)
	if errors.Is(err, storage.ErrBucketNotFound) {
		return nil, fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec UsageRecord
	if err := json.Unmarshal(raw.Data, &rec); err != nil {
		return nil, fmt.Errorf("decoding usage record %s: %w", userID, err)
	}
	return &rec, nil
}

// Exists reports whether userID has any recorded usage.
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := s.Read(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ReadAll returns every user's record ordered by user id.
func (s *Store) ReadAll(ctx context.Context) ([]UserUsage, error) {
	keys, err := s.repo.List(ctx, Bucket)
	if err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}
	out := make([]UserUsage, 0, len(keys))
	for _, id := range keys {
		rec, err := s.Read(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, UserUsage{UserID: id, UsageRecord: *rec})
	}
	sortByUserID(out)
	return out, nil
}
