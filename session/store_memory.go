package session

import (
	"sync"
	"time"
)

const sweepInterval = time.Minute

// MemoryStore is a thread-safe in-memory Store.
// Sessions are lost on process restart.
type MemoryStore struct {
	mu          sync.RWMutex
	data        map[string]*EditingSession
	idleTimeout time.Duration
	stopOnce    sync.Once
	stopCh      chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
// idleTimeout of 0 disables idle expiry and the background sweeper.
func NewMemoryStore(idleTimeout time.Duration) *MemoryStore {
	s := &MemoryStore{
		data:        make(map[string]*EditingSession),
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
	}
	if idleTimeout > 0 {
		go s.sweepLoop()
	}
	return s
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) Get(userID string) (*EditingSession, bool) {
	s.mu.RLock()
	sess, ok := s.data[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.idle(sess, time.Now()) {
		s.Delete(userID)
		return nil, false
	}
	return sess, true
}

func (s *MemoryStore) Put(userID string, sess *EditingSession) {
	s.mu.Lock()
	s.data[userID] = sess
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(userID string) {
	s.mu.Lock()
	delete(s.data, userID)
	s.mu.Unlock()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) idle(sess *EditingSession, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(sess.LastAccessedAt) > s.idleTimeout
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

// sweepIdle drops sessions abandoned for longer than the idle timeout so
// their image buffers can be reclaimed.
func (s *MemoryStore) sweepIdle() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.data {
		if s.idle(sess, now) {
			delete(s.data, id)
		}
	}
}
