// Package model defines the domain types of the import pipeline: jobs, chunk messages,
// salary records, row errors and progress snapshots.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	JobStatusValidating JobStatus = "VALIDATING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusPaused     JobStatus = "PAUSED"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusError      JobStatus = "ERROR"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusValidating,
	JobStatusProcessing,
	JobStatusPaused,
	JobStatusCompleted,
	JobStatusError,
	JobStatusCancelled,
}

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusValidating, JobStatusProcessing, JobStatusPaused,
		JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinalizable reports whether TryFinalize may move a job in this status to COMPLETED.
func (s JobStatus) IsFinalizable() bool {
	return s == JobStatusValidating || s == JobStatusProcessing
}

// Description returns a human readable description of the status.
func (s JobStatus) Description() string {
	switch s {
	case JobStatusValidating:
		return "Validating file"
	case JobStatusProcessing:
		return "Processing records"
	case JobStatusPaused:
		return "Temporarily paused"
	case JobStatusCompleted:
		return "Completed successfully"
	case JobStatusError:
		return "Processing error"
	case JobStatusCancelled:
		return "Cancelled by user"
	default:
		return "Unknown status"
	}
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusValidating:
		return next == JobStatusProcessing || next == JobStatusPaused || next == JobStatusCancelled ||
			next == JobStatusError || next == JobStatusCompleted
	case JobStatusProcessing:
		return next == JobStatusPaused || next == JobStatusCancelled ||
			next == JobStatusError || next == JobStatusCompleted
	case JobStatusPaused:
		// resume, or abort while paused
		return next == JobStatusProcessing || next == JobStatusCancelled || next == JobStatusError
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return false
	default:
		return false
	}
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown job status: %q", s)
	}
	return status, nil
}

// Job is the authoritative record of one file import.
// Invariants: Processed == Success + Errors, and Processed <= Total once Total is set.
type Job struct {
	ID                  string     `json:"id"`
	Filename            string     `json:"filename"`
	RequesterEmail      string     `json:"requesterEmail"`
	Status              JobStatus  `json:"status"`
	Total               int        `json:"total"`
	Processed           int        `json:"processed"`
	Success             int        `json:"success"`
	Errors              int        `json:"errors"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	FileSizeBytes       int64      `json:"fileSizeBytes"`
	FileRef             string     `json:"fileRef"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	StartedProcessingAt *time.Time `json:"startedProcessingAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	Version             int        `json:"version"`
}

// NewID generates a new job id.
func NewID() string {
	return uuid.New().String()
}

// NewJob creates a job in VALIDATING.
func NewJob(id, filename, email, fileRef string, size int64) *Job {
	now := time.Now().UTC()
	if id == "" {
		id = NewID()
	}
	return &Job{
		ID:             id,
		Filename:       filename,
		RequesterEmail: email,
		Status:         JobStatusValidating,
		FileRef:        fileRef,
		FileSizeBytes:  size,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedProcessingAt != nil {
		t := *j.StartedProcessingAt
		c.StartedProcessingAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Supersedes reports whether j may replace older as the latest snapshot of the same job.
// A terminal snapshot is never replaced by a non-terminal one; otherwise the higher
// version wins.
func (j *Job) Supersedes(older *Job) bool {
	if older == nil {
		return true
	}
	if j.Status.IsTerminal() != older.Status.IsTerminal() {
		return j.Status.IsTerminal()
	}
	return j.Version >= older.Version
}

// CompletedCopy returns a COMPLETED copy of the job as of at.
func (j *Job) CompletedCopy(at time.Time) *Job {
	c := j.Clone()
	c.Status = JobStatusCompleted
	c.CompletedAt = &at
	c.UpdatedAt = at
	c.Version++
	return c
}

// ProgressPct returns processed/total as a percentage, 0 while total is unknown.
func (j *Job) ProgressPct() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Processed) * 100 / float64(j.Total)
}

// Duration returns the time from creation until completion, or until now if still running.
func (j *Job) Duration(now time.Time) time.Duration {
	if j.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(j.CreatedAt)
}

// RowsPerSecond returns the processing speed since processing started.
func (j *Job) RowsPerSecond(now time.Time) float64 {
	if j.StartedProcessingAt == nil || j.Processed == 0 {
		return 0
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	secs := int64(end.Sub(*j.StartedProcessingAt).Seconds())
	if secs <= 0 {
		return 0
	}
	return float64(j.Processed) / float64(secs)
}

// ETA estimates the remaining time from the current speed.
func (j *Job) ETA(now time.Time) time.Duration {
	if j.Total <= 0 || j.Processed == 0 || j.Total <= j.Processed {
		return 0
	}
	speed := j.RowsPerSecond(now)
	if speed == 0 {
		return 0
	}
	remaining := float64(j.Total - j.Processed)
	return time.Duration(remaining/speed) * time.Second
}

// SuccessRate returns success/processed as a percentage.
func (j *Job) SuccessRate() float64 {
	if j.Processed == 0 {
		return 0
	}
	return float64(j.Success) * 100 / float64(j.Processed)
}

// Summary returns a one-line description used in logs.
func (j *Job) Summary() string {
	id := j.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Job[%s]: %s - %d/%d processed (%.1f%%) - %d ok, %d errors - %s",
		id, j.Status, j.Processed, j.Total, j.ProgressPct(), j.Success, j.Errors, j.Filename)
}

// FormatDuration renders a duration as "42 seconds", "3 min 5 sec" or "2 h 10 min".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%d seconds", secs)
	case secs < 3600:
		return fmt.Sprintf("%d min %d sec", secs/60, secs%60)
	default:
		return fmt.Sprintf("%d h %d min", secs/3600, (secs%3600)/60)
	}
}
