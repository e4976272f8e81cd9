package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// lockoutThreshold is the number of consecutive denials from one client
	// IP before the operator routes stop answering it.
	lockoutThreshold = 5
	baseLockout      = time.Minute
	maxLockout       = 30 * time.Minute
	// denialMemory is how long a client's denial streak is remembered.
	denialMemory = time.Hour
)

// operatorLockout locks client IPs out of the operator routes after
// repeated denials. Each denial past the threshold doubles the lockout.
type operatorLockout struct {
	clock clockwork.Clock

	mu      sync.Mutex
	streaks map[string]*denialStreak
}

type denialStreak struct {
	count int
	last  time.Time
	until time.Time
}

func newOperatorLockout(clock clockwork.Clock) *operatorLockout {
	return &operatorLockout{
		clock:   clock,
		streaks: make(map[string]*denialStreak),
	}
}

// lockoutFor returns the lockout earned by the count-th consecutive denial.
func lockoutFor(count int) time.Duration {
	if count < lockoutThreshold {
		return 0
	}
	d := baseLockout
	for i := lockoutThreshold; i < count && d < maxLockout; i++ {
		d *= 2
	}
	return min(d, maxLockout)
}

// remaining reports how long ip stays locked out. Zero means admitted.
func (l *operatorLockout) remaining(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streaks[ip]
	if !ok {
		return 0
	}
	now := l.clock.Now()
	if now.Sub(s.last) > denialMemory {
		delete(l.streaks, ip)
		return 0
	}
	if now.Before(s.until) {
		return s.until.Sub(now)
	}
	return 0
}

// deny extends the streak of ip.
func (l *operatorLockout) deny(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streaks[ip]
	if !ok {
		s = &denialStreak{}
		l.streaks[ip] = s
	}
	s.count++
	s.last = l.clock.Now()
	if d := lockoutFor(s.count); d > 0 {
		s.until = s.last.Add(d)
	}
}

// admit forgets the streak of ip.
func (l *operatorLockout) admit(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.streaks, ip)
}

// sweep drops streaks older than denialMemory.
func (l *operatorLockout) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for ip, s := range l.streaks {
		if now.Sub(s.last) > denialMemory {
			delete(l.streaks, ip)
		}
	}
}

// writeLockedOut sends 429 with a Retry-After in whole seconds.
func writeLockedOut(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "too many denied requests; try again later")
}

// SweepLoop periodically drops expired denial streaks until ctx is done.
func (a *API) SweepLoop(ctx context.Context, interval time.Duration) {
	t := a.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			a.lockout.sweep()
		}
	}
}
