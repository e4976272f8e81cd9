package api

import (
	"time"

	"github.com/jmcleod/backdrop/ledger"
)

// IntentRequest is the JSON body for POST /users/{userID}/intents.
type IntentRequest struct {
	Intent string `json:"intent"`
	Color  string `json:"color,omitempty"`
}

// ResultResponse is returned for every successfully handled photo or intent.
// Image is a base64 PNG and is omitted when the outcome produced none.
type ResultResponse struct {
	RequestID string   `json:"request_id"`
	Outcome   string   `json:"outcome"`
	Step      string   `json:"step"`
	Caption   string   `json:"caption"`
	Image     string   `json:"image,omitempty"`
	Filename  string   `json:"filename,omitempty"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	Color     string   `json:"color,omitempty"`
	Colors    []string `json:"colors,omitempty"`
}

// WelcomeResponse is returned from POST /users/{userID}/start.
type WelcomeResponse struct {
	Caption   string `json:"caption"`
	Returning bool   `json:"returning"`
	Step      string `json:"step"`
}

// HelpResponse is returned from GET /help.
type HelpResponse struct {
	Caption string   `json:"caption"`
	Colors  []string `json:"colors"`
}

// SessionResponse is returned from GET /users/{userID}/session.
type SessionResponse struct {
	UserID string `json:"user_id"`
	Step   string `json:"step"`
}

// StatsResponse is returned from GET /users/{userID}/stats.
type StatsResponse struct {
	UserID string `json:"user_id"`
	ledger.Stats
}

// UserEntry is one user in the operator listings.
type UserEntry struct {
	UserID         string     `json:"user_id"`
	TotalProcessed int64      `json:"total_processed"`
	FirstUse       time.Time  `json:"first_use"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

// UsersResponse is returned from GET /admin/users.
type UsersResponse struct {
	Users []UserEntry `json:"users"`
	PaginationMeta
}

// TopResponse is returned from GET /admin/top.
type TopResponse struct {
	Users []UserEntry `json:"users"`
}

// ErrorResponse is returned on any error.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func newUserEntry(u ledger.UserUsage) UserEntry {
	e := UserEntry{
		UserID:         u.UserID,
		TotalProcessed: u.TotalProcessed,
		FirstUse:       u.FirstUse,
	}
	if last, ok := u.LastActivity(); ok {
		e.LastActivity = &last
	}
	return e
}

func newUserEntries(all []ledger.UserUsage) []UserEntry {
	out := make([]UserEntry, 0, len(all))
	for _, u := range all {
		out = append(out, newUserEntry(u))
	}
	return out
}
