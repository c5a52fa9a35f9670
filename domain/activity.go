package domain

import "time"

// ActivityLogEntry records one user action against the board. Entries are
// immutable once written and listed newest-first.
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// DefaultLogLimit is the activity window clients display by default.
	DefaultLogLimit = 20
	// MaxLogLimit caps how many entries a single listing may return.
	MaxLogLimit = 50
)
