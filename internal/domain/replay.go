package domain

import (
	"fmt"
	"time"
)

// ReplayStatus represents the status of a replay run
type ReplayStatus string

const (
	ReplayStatusPending   ReplayStatus = "pending"
	ReplayStatusRunning   ReplayStatus = "running"
	ReplayStatusCompleted ReplayStatus = "completed"
	ReplayStatusFailed    ReplayStatus = "failed"
)

// IsValid returns true if the status is valid
func (s ReplayStatus) IsValid() bool {
	switch s {
	case ReplayStatusPending, ReplayStatusRunning, ReplayStatusCompleted, ReplayStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the run will not change again
func (s ReplayStatus) IsTerminal() bool {
	return s == ReplayStatusCompleted || s == ReplayStatusFailed
}

// ReplayRun groups the re-ingestion of one document or a whole organization.
type ReplayRun struct {
	ID         string
	OrgID      string
	DocID      string
	Force      bool
	Status     ReplayStatus
	Scanned    int
	Changed    int
	Unchanged  int
	Errored    int
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Trigger returns the lineage trigger recorded for documents in this run.
func (r *ReplayRun) Trigger() IngestTrigger {
	if r.Force {
		return TriggerReplayForce
	}
	return TriggerReplay
}

// ValidateReplayRun validates a ReplayRun instance
func ValidateReplayRun(r *ReplayRun) error {
	if r == nil {
		return fmt.Errorf("replay run cannot be nil")
	}
	if r.ID == "" {
		return fmt.Errorf("replay run ID is required")
	}
	if r.OrgID == "" {
		return fmt.Errorf("replay run OrgID is required")
	}
	if !r.Status.IsValid() {
		return ErrInvalidReplayStatus
	}
	return nil
}

var ErrInvalidReplayStatus = NewDomainError(ErrCodeValidation, "invalid replay run status")
