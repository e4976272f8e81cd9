package session

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(w, h int) *EditingSession {
	return New([]byte("foreground"), image.NewAlpha(image.Rect(0, 0, w, h)))
}

// storeTests runs the common suite against any Store implementation.
func storeTests(t *testing.T, store Store) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		store.Put("u-1", newTestSession(300, 200))
		got, ok := store.Get("u-1")
		require.True(t, ok, "expected to find session")
		assert.Equal(t, StepHasForeground, got.Step)
		assert.Equal(t, 300, got.Width)
		assert.Equal(t, 200, got.Height)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok := store.Get("no-such-user")
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		store.Put("u-del", newTestSession(1, 1))
		store.Delete("u-del")
		_, ok := store.Get("u-del")
		assert.False(t, ok, "expected session to be deleted")
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		// Should not panic.
		store.Delete("never-existed")
	})

	t.Run("Overwrite", func(t *testing.T) {
		store.Put("u-ow", newTestSession(10, 10))
		store.Put("u-ow", newTestSession(20, 5).WithStep(StepAwaitingBackground))

		got, ok := store.Get("u-ow")
		require.True(t, ok, "expected session after overwrite")
		assert.Equal(t, StepAwaitingBackground, got.Step)
		assert.Equal(t, 20, got.Width)
		assert.Equal(t, 5, got.Height)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	defer store.Close()
	storeTests(t, store)

	t.Run("IdleTimeout", func(t *testing.T) {
		s := NewMemoryStore(100 * time.Millisecond)
		defer s.Close()
		sess := newTestSession(1, 1)
		sess.LastAccessedAt = time.Now().Add(-200 * time.Millisecond)
		s.Put("u-idle", sess)

		_, ok := s.Get("u-idle")
		assert.False(t, ok, "expected idle session to be rejected")
		assert.Equal(t, 0, s.Len())
	})

	t.Run("IdleTimeoutDisabled", func(t *testing.T) {
		s := NewMemoryStore(0)
		sess := newTestSession(1, 1)
		sess.LastAccessedAt = time.Now().Add(-24 * time.Hour)
		s.Put("u-no-idle", sess)

		_, ok := s.Get("u-no-idle")
		assert.True(t, ok, "expected session to be valid when idle timeout is disabled")
	})

	t.Run("SweepIdle", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		defer s.Close()
		stale := newTestSession(1, 1)
		stale.LastAccessedAt = time.Now().Add(-time.Hour)
		s.Put("u-stale", stale)
		s.Put("u-fresh", newTestSession(1, 1))

		s.sweepIdle()

		assert.Equal(t, 1, s.Len())
		_, ok := s.Get("u-fresh")
		assert.True(t, ok)
	})
}

func TestNew_CopiesForeground(t *testing.T) {
	buf := []byte{1, 2, 3}
	s := New(buf, image.NewAlpha(image.Rect(0, 0, 3, 1)))
	buf[0] = 9
	assert.Equal(t, byte(1), s.Foreground[0])
	assert.Equal(t, 3, s.Width)
	assert.Equal(t, 1, s.Height)
}

func TestWithStep(t *testing.T) {
	s := newTestSession(4, 4)
	next := s.WithStep(StepAwaitingBackground)

	assert.Equal(t, StepHasForeground, s.Step, "original must not change")
	assert.Equal(t, StepAwaitingBackground, next.Step)
	assert.Same(t, s.Mask, next.Mask)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "none", StepNone.String())
	assert.Equal(t, "has_foreground", StepHasForeground.String())
	assert.Equal(t, "awaiting_background_photo", StepAwaitingBackground.String())
	assert.Equal(t, "unknown", Step(42).String())
}

func TestLocker_SerializesPerKey(t *testing.T) {
	l := NewLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("user")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.held(), "lock entries should be released")
}

func TestLocker_IndependentKeys(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
