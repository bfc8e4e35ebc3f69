package models

import "time"

// SyncAttempt is the immutable audit record of one synchronization attempt.
type SyncAttempt struct {
	ID             int64     `db:"id" json:"id"`
	RunID          string    `db:"run_id" json:"run_id"`
	PendingWriteID int64     `db:"pending_write_id" json:"pending_write_id"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	Collection     string    `db:"collection" json:"collection"`
	Success        bool      `db:"success" json:"success"`
	AttemptNumber  int       `db:"attempt_number" json:"attempt_number"`
	DurationMs     int64     `db:"duration_ms" json:"duration_ms"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
}

// Duration returns DurationMs as a time.Duration.
func (a *SyncAttempt) Duration() time.Duration {
	return time.Duration(a.DurationMs) * time.Millisecond
}
