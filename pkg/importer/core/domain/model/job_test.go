package model_test

import (
	"testing"
	"time"

	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to model.JobStatus
		allowed  bool
	}{
		{model.JobStatusValidating, model.JobStatusProcessing, true},
		{model.JobStatusValidating, model.JobStatusCompleted, true},
		{model.JobStatusProcessing, model.JobStatusCompleted, true},
		{model.JobStatusProcessing, model.JobStatusError, true},
		{model.JobStatusProcessing, model.JobStatusPaused, true},
		{model.JobStatusProcessing, model.JobStatusCancelled, true},
		{model.JobStatusPaused, model.JobStatusProcessing, true},
		{model.JobStatusPaused, model.JobStatusCompleted, false},
		{model.JobStatusProcessing, model.JobStatusValidating, false},
		{model.JobStatusCompleted, model.JobStatusError, false},
		{model.JobStatusError, model.JobStatusProcessing, false},
		{model.JobStatusCancelled, model.JobStatusProcessing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, from := range model.AllJobStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range model.AllJobStatuses {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestParseJobStatus(t *testing.T) {
	s, err := model.ParseJobStatus("PAUSED")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, s)

	_, err = model.ParseJobStatus("RUNNING")
	assert.Error(t, err)
}

func TestJobDerivedViews(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	started := created.Add(10 * time.Second)
	now := started.Add(100 * time.Second)

	job := model.NewJob("0123456789abcdef", "payroll.xlsx", "ops@example.com", "uploads/x.xlsx", 2048)
	job.CreatedAt = created
	job.StartedProcessingAt = &started
	job.Status = model.JobStatusProcessing
	job.Total = 4000
	job.Processed = 1000
	job.Success = 900
	job.Errors = 100

	assert.Equal(t, 25.0, job.ProgressPct())
	assert.Equal(t, 110*time.Second, job.Duration(now))
	assert.Equal(t, 10.0, job.RowsPerSecond(now))
	assert.Equal(t, 300*time.Second, job.ETA(now))
	assert.Equal(t, 90.0, job.SuccessRate())
	assert.Contains(t, job.Summary(), "Job[01234567]: PROCESSING - 1000/4000")

	completed := now
	job.CompletedAt = &completed
	assert.Equal(t, 110*time.Second, job.Duration(now.Add(time.Hour)))
}

func TestJobDerivedViewsBeforeTotalIsKnown(t *testing.T) {
	job := model.NewJob("", "f.xlsx", "a@b.c", "ref", 1)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusValidating, job.Status)
	assert.Equal(t, 0.0, job.ProgressPct())
	assert.Equal(t, 0.0, job.RowsPerSecond(time.Now()))
	assert.Equal(t, time.Duration(0), job.ETA(time.Now()))
	assert.Equal(t, 0.0, job.SuccessRate())
}

func TestJobCloneIsDeep(t *testing.T) {
	ts := time.Now()
	job := &model.Job{ID: "a", StartedProcessingAt: &ts}
	c := job.Clone()
	*c.StartedProcessingAt = ts.Add(time.Hour)

	assert.Equal(t, ts, *job.StartedProcessingAt)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42 seconds", model.FormatDuration(42*time.Second))
	assert.Equal(t, "3 min 5 sec", model.FormatDuration(185*time.Second))
	assert.Equal(t, "2 h 10 min", model.FormatDuration(2*time.Hour+10*time.Minute))
}

func TestProgressUpdateMessages(t *testing.T) {
	job := &model.Job{ID: "j", Status: model.JobStatusError, ErrorMessage: "boom", Total: 10, Processed: 4, Success: 4}
	u := model.NewProgressUpdate(job, time.Now())

	assert.Equal(t, "Processing error: boom", u.Message)
	assert.Equal(t, 40.0, u.ProgressPct)
	assert.True(t, u.IsTerminal())

	job.Status = model.JobStatusCompleted
	assert.Equal(t, "Completed: 4 succeeded, 0 errors", model.NewProgressUpdate(job, time.Now()).Message)
}

func TestJobSupersedes(t *testing.T) {
	snapshot := func(status model.JobStatus, version int) *model.Job {
		return &model.Job{ID: "job-1", Status: status, Version: version}
	}

	assert.True(t, snapshot(model.JobStatusProcessing, 1).Supersedes(nil))
	assert.True(t, snapshot(model.JobStatusProcessing, 3).Supersedes(snapshot(model.JobStatusProcessing, 2)))
	assert.True(t, snapshot(model.JobStatusProcessing, 3).Supersedes(snapshot(model.JobStatusProcessing, 3)))
	assert.False(t, snapshot(model.JobStatusProcessing, 2).Supersedes(snapshot(model.JobStatusProcessing, 3)))

	// terminal wins regardless of version
	assert.True(t, snapshot(model.JobStatusCompleted, 1).Supersedes(snapshot(model.JobStatusProcessing, 5)))
	assert.False(t, snapshot(model.JobStatusProcessing, 9).Supersedes(snapshot(model.JobStatusCompleted, 4)))
	assert.False(t, snapshot(model.JobStatusPaused, 9).Supersedes(snapshot(model.JobStatusError, 4)))
	assert.True(t, snapshot(model.JobStatusError, 5).Supersedes(snapshot(model.JobStatusError, 0)))
}

func TestJobCompletedCopy(t *testing.T) {
	at := time.Date(2026, 3, 31, 18, 0, 0, 0, time.UTC)
	job := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, Total: 10, Processed: 10, Success: 10, Version: 4}

	done := job.CompletedCopy(at)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 5, done.Version)
	assert.Equal(t, 10, done.Success)
	assert.True(t, done.CompletedAt.Equal(at))
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Nil(t, job.CompletedAt)
}
