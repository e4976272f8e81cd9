package ledger

import (
	"sort"
	"time"
)

// Summary is the operator's aggregate view of the ledger.
type Summary struct {
	TotalUsers      int   `json:"total_users"`
	TotalProcessed  int64 `json:"total_processed"`
	ActiveToday     int   `json:"active_today"`
	WeeklyProcessed int64 `json:"weekly_processed"`
}

// Stats is a single user's view of their own usage.
type Stats struct {
	TotalProcessed int64     `json:"total_processed"`
	DaysUsed       int       `json:"days_used"`
	HistoryCount   int       `json:"history_count"`
	FirstUse       time.Time `json:"first_use"`
	LastActivity   time.Time `json:"last_activity,omitzero"`
}

// Summarize aggregates all records relative to now. A user is active today
// when their most recent event falls on now's calendar day. WeeklyProcessed
// sums the totals of users whose first use is at most seven days before now.
func Summarize(all []UserUsage, now time.Time) Summary {
	var s Summary
	s.TotalUsers = len(all)
	for i := range all {
		u := &all[i]
		s.TotalProcessed += u.TotalProcessed
		if last, ok := u.LastActivity(); ok && calendarDaysBetween(last, now) == 0 {
			s.ActiveToday++
		}
		if !u.FirstUse.IsZero() && calendarDaysBetween(u.FirstUse, now) <= 7 {
			s.WeeklyProcessed += u.TotalProcessed
		}
	}
	return s
}

// Top returns up to n users ordered by TotalProcessed descending. Ties are
// broken by user id so the ranking is stable.
func Top(all []UserUsage, n int) []UserUsage {
	if n <= 0 || len(all) == 0 {
		return nil
	}
	ranked := append([]UserUsage(nil), all...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalProcessed != ranked[j].TotalProcessed {
			return ranked[i].TotalProcessed > ranked[j].TotalProcessed
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// UserStats derives per-user statistics. DaysUsed counts whole days since
// first use and is never below one.
func UserStats(rec *UsageRecord, now time.Time) Stats {
	days := int(now.Sub(rec.FirstUse) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	st := Stats{
		TotalProcessed: rec.TotalProcessed,
		DaysUsed:       days,
		HistoryCount:   len(rec.History),
		FirstUse:       rec.FirstUse,
	}
	if last, ok := rec.LastActivity(); ok {
		st.LastActivity = last
	}
	return st
}

// calendarDaysBetween returns the number of calendar days from a to b in b's
// location.
func calendarDaysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}

func sortByUserID(all []UserUsage) {
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
}
