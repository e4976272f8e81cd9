// Package ledger keeps durable per-user usage records and derives the
// aggregate reports shown to users and to the operator.
package ledger

import (
	"time"
)

// MaxHistory is the number of recent events kept per user.
const MaxHistory = 10

// EventPhotoProcessed is recorded for every successful background application.
const EventPhotoProcessed = "photo_processed"

// Event is one entry of a user's recent history.
type Event struct {
	Timestamp time.Time `json:"date"`
	Type      string    `json:"type"`
}

// UsageRecord is the durable usage document of one user.
type UsageRecord struct {
	TotalProcessed int64     `json:"total_processed"`
	FirstUse       time.Time `json:"first_use"`
	History        []Event   `json:"history"`
}

// UserUsage pairs a user id with its record for aggregate queries.
type UserUsage struct {
	UserID string
	UsageRecord
}

// LastActivity returns the timestamp of the most recent history entry.
func (r *UsageRecord) LastActivity() (time.Time, bool) {
	if len(r.History) == 0 {
		return time.Time{}, false
	}
	return r.History[len(r.History)-1].Timestamp, true
}

// apply adds one event, setting FirstUse on the first call and evicting the
// oldest history entries beyond MaxHistory.
func (r *UsageRecord) apply(ev Event) {
	if r.FirstUse.IsZero() {
		r.FirstUse = ev.Timestamp
	}
	r.TotalProcessed++
	r.History = append(r.History, ev)
	if n := len(r.History); n > MaxHistory {
		r.History = append([]Event(nil), r.History[n-MaxHistory:]...)
	}
}
