package domain

import "time"

// DayFormat is the calendar-day key used for check-in idempotency
const DayFormat = "2006-01-02"

// Day returns the calendar-day key for t in local time
func Day(t time.Time) string {
	return t.Format(DayFormat)
}

// CheckinRecord is one row per (account, calendar day) attempt.
// Immutable once a terminal outcome is stored.
type CheckinRecord struct {
	ID        int64
	AccountID int64
	Day       string
	Outcome   CheckinOutcome
	Detail    string
	CreatedAt time.Time
}

// LogEntry is one diagnostic line from an account run
type LogEntry struct {
	ID        int64
	AccountID int64
	RunID     string
	Timestamp time.Time
	Line      string
}

// Profile is the scraped forum standing of one account. Counter fields are
// nil when the space page did not show them.
type Profile struct {
	AccountID int64     `json:"account_id"`
	UserGroup string    `json:"user_group,omitempty"`
	Points    *int      `json:"points,omitempty"`
	Money     *int      `json:"money,omitempty"`
	Secoin    *int      `json:"secoin,omitempty"`
	Score     *int      `json:"score,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReplyJob is an on-demand reply to one thread
type ReplyJob struct {
	AccountID int64  `json:"account_id"`
	ThreadID  int    `json:"thread_id"`
	Context   string `json:"context,omitempty"`
	Generated string `json:"generated"`
	DryRun    bool   `json:"dry_run"`
	Ok        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
}
