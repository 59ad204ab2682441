// Package pending provides the pending action record entity used by the
// status reconciliation loop.
package pending

import "time"

// Kind identifies which remote intake queue a record belongs to.
type Kind string

const (
	KindFix Kind = "fix" // Fix report for a broken track
	KindAdd Kind = "add" // Request to add a missing track
)

// Status represents the lifecycle state of a pending record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Record represents a locally tracked request awaiting remote completion.
// Created after the remote intake accepts the submission, flipped to
// approved by the reconciliation loop, and removed once the user has been
// notified exactly once.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Subject     string    `json:"subject"` // Human-readable description (e.g. track name)
	SubmittedAt time.Time `json:"submitted_at"`
	Status      Status    `json:"status"`
}
