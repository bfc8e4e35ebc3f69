package models

import "time"

// PendingWriteStatus is the lifecycle state of a queued write.
type PendingWriteStatus string

const (
	// PendingWriteStatusPending entries are picked up by every drain.
	PendingWriteStatusPending PendingWriteStatus = "PENDING"
	// PendingWriteStatusFailed entries reached the configured attempt ceiling
	// and wait for an operator to requeue or clear them.
	PendingWriteStatusFailed PendingWriteStatus = "FAILED"
)

// PendingWrite is a write captured locally because it could not, or should
// not, be sent to the remote store immediately.
type PendingWrite struct {
	ID           int64              `db:"id" json:"id"`
	Collection   string             `db:"collection" json:"collection"`
	Payload      Payload            `db:"payload" json:"payload"`
	EnqueuedAt   time.Time          `db:"enqueued_at" json:"enqueued_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
	Status       PendingWriteStatus `db:"status" json:"status"`
	AttemptCount int                `db:"attempt_count" json:"attempt_count"`
	LastError    string             `db:"last_error" json:"last_error,omitempty"`
}

// NextAttempt returns the 1-based number of the next synchronization attempt.
func (w *PendingWrite) NextAttempt() int {
	return w.AttemptCount + 1
}

// PendingWritePatch holds the mutable fields the synchronizer writes back
// after a failed attempt. Nil fields are left unchanged.
type PendingWritePatch struct {
	AttemptCount *int
	LastError    *string
	Status       *PendingWriteStatus
}

// IsEmpty reports whether the patch changes nothing.
func (p PendingWritePatch) IsEmpty() bool {
	return p.AttemptCount == nil && p.LastError == nil && p.Status == nil
}

// FailedAttemptPatch builds the patch recorded after a failed attempt.
func FailedAttemptPatch(attemptNumber int, message string) PendingWritePatch {
	return PendingWritePatch{
		AttemptCount: &attemptNumber,
		LastError:    &message,
	}
}

// WithStatus returns a copy of the patch that also sets the status.
func (p PendingWritePatch) WithStatus(status PendingWriteStatus) PendingWritePatch {
	p.Status = &status
	return p
}
