package model

import (
	"fmt"
	"time"
)

// ProgressUpdate is the real-time payload pushed to subscribers of a job.
type ProgressUpdate struct {
	JobID         string    `json:"jobId"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	Success       int       `json:"success"`
	Errors        int       `json:"errors"`
	ProgressPct   float64   `json:"progressPct"`
	Status        JobStatus `json:"status"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	RowsPerSecond float64   `json:"rowsPerSecond"`
	Remaining     string    `json:"remaining"`
	SuccessRate   float64   `json:"successRate"`
}

// NewProgressUpdate derives the payload from a job snapshot.
func NewProgressUpdate(job *Job, now time.Time) ProgressUpdate {
	return ProgressUpdate{
		JobID:         job.ID,
		Total:         job.Total,
		Processed:     job.Processed,
		Success:       job.Success,
		Errors:        job.Errors,
		ProgressPct:   job.ProgressPct(),
		Status:        job.Status,
		Message:       progressMessage(job),
		Timestamp:     now,
		RowsPerSecond: job.RowsPerSecond(now),
		Remaining:     FormatDuration(job.ETA(now)),
		SuccessRate:   job.SuccessRate(),
	}
}

// IsTerminal reports whether the update carries a final status.
func (u ProgressUpdate) IsTerminal() bool {
	return u.Status.IsTerminal()
}

func progressMessage(job *Job) string {
	switch job.Status {
	case JobStatusValidating:
		return "Validating file..."
	case JobStatusProcessing:
		return fmt.Sprintf("Processing: %d of %d records (%.1f%%)", job.Processed, job.Total, job.ProgressPct())
	case JobStatusCompleted:
		return fmt.Sprintf("Completed: %d succeeded, %d errors", job.Success, job.Errors)
	case JobStatusError:
		return "Processing error: " + job.ErrorMessage
	case JobStatusPaused:
		return "Processing paused"
	case JobStatusCancelled:
		return "Processing cancelled"
	default:
		return "Unknown status"
	}
}

// JobStatusView is the status query response.
type JobStatusView struct {
	JobID         string     `json:"jobId"`
	Filename      string     `json:"filename"`
	Status        JobStatus  `json:"status"`
	Total         int        `json:"total"`
	Processed     int        `json:"processed"`
	Success       int        `json:"success"`
	Errors        int        `json:"errors"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	ProgressPct   float64    `json:"progressPct"`
	RowsPerSecond float64    `json:"rowsPerSecond"`
	Remaining     string     `json:"remaining"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// NewJobStatusView builds the status response from a job snapshot.
func NewJobStatusView(job *Job, now time.Time) JobStatusView {
	return JobStatusView{
		JobID:         job.ID,
		Filename:      job.Filename,
		Status:        job.Status,
		Total:         job.Total,
		Processed:     job.Processed,
		Success:       job.Success,
		Errors:        job.Errors,
		ErrorMessage:  job.ErrorMessage,
		ProgressPct:   job.ProgressPct(),
		RowsPerSecond: job.RowsPerSecond(now),
		Remaining:     FormatDuration(job.ETA(now)),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		CompletedAt:   job.CompletedAt,
	}
}
