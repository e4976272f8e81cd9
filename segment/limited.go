package segment

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limited bounds the number of concurrent calls to the engine. Callers beyond
// the bound wait for a slot until their context is done.
type Limited struct {
	next Gateway
	sem  *semaphore.Weighted
}

var _ Gateway = (*Limited)(nil)

// NewLimited wraps next so that at most maxConcurrent calls run at once.
func NewLimited(next Gateway, maxConcurrent int64) *Limited {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (l *Limited) RemoveBackground(ctx context.Context, img []byte) (Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: waiting for engine slot: %w", ErrSegmentation, err)
	}
	defer l.sem.Release(1)
	res, err := l.next.RemoveBackground(ctx, img)
	if err != nil {
		return Result{}, failure(err)
	}
	return res, nil
}
