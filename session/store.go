package session

// Store abstracts session CRUD keyed by user identity. At most one session
// exists per user; Put replaces any existing session unconditionally.
type Store interface {
	// Get retrieves the session for userID. Returns false if none exists or
	// it has exceeded the idle timeout.
	Get(userID string) (*EditingSession, bool)
	// Put creates or replaces the session for userID.
	Put(userID string, s *EditingSession)
	// Delete removes the session for userID. Deleting a missing session is a no-op.
	Delete(userID string)
	// Len reports the number of stored sessions.
	Len() int
}
