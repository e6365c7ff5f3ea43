package sql_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

func TestSQLJobRepository_CreateAndFind(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	job := f.createJob(t, 0)
	got, err := f.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusValidating, got.Status)
	assert.Equal(t, "ops@example.com", got.RequesterEmail)
	assert.Equal(t, 0, got.Total)

	_, err = f.jobs.FindByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrJobNotFound)
	assert.True(t, exception.IsConfiguration(err))

	byEmail, err := f.jobs.FindByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)
}

func TestSQLJobRepository_SetTotal(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	job := f.createJob(t, 0)

	require.NoError(t, f.jobs.SetTotal(ctx, job.ID, 2500))
	got, err := f.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2500, got.Total)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.NotNil(t, got.StartedProcessingAt)

	// same value is a no-op
	require.NoError(t, f.jobs.SetTotal(ctx, job.ID, 2500))

	err = f.jobs.SetTotal(ctx, job.ID, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrAlreadySet)

	err = f.jobs.SetTotal(ctx, job.ID, 0)
	assert.True(t, exception.IsConfiguration(err))
}

func TestSQLJobRepository_IncrementCountersNeverTouchesStatus(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	job := f.createJob(t, 10)

	snap, err := f.jobs.IncrementCounters(ctx, job.ID, 10, 8, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Processed)
	assert.Equal(t, 8, snap.Success)
	assert.Equal(t, 2, snap.Errors)
	assert.Equal(t, model.JobStatusProcessing, snap.Status)

	// overflow is treated as a duplicate delivery and leaves the row untouched
	again, err := f.jobs.IncrementCounters(ctx, job.ID, 5, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, again.Processed)

	_, err = f.jobs.IncrementCounters(ctx, job.ID, 3, 1, 1)
	assert.True(t, exception.IsConfiguration(err))
}

func TestSQLJobRepository_ConcurrentChunksFinalizeExactlyOnce(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	const chunks, chunkSize = 8, 25
	job := f.createJob(t, chunks*chunkSize)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs := i % 3
			_, err := f.jobs.IncrementCounters(ctx, job.ID, chunkSize, chunkSize-errs, errs)
			assert.NoError(t, err)
			won, _, err := f.jobs.TryFinalize(ctx, job.ID)
			assert.NoError(t, err)
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	got, err := f.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, chunks*chunkSize, got.Processed)
	assert.Equal(t, got.Processed, got.Success+got.Errors)
	assert.NotNil(t, got.CompletedAt)
}

func TestSQLJobRepository_TryFinalize(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	t.Run("not finished", func(t *testing.T) {
		job := f.createJob(t, 10)
		_, err := f.jobs.IncrementCounters(ctx, job.ID, 4, 4, 0)
		require.NoError(t, err)
		won, snap, err := f.jobs.TryFinalize(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, won)
		assert.Nil(t, snap)
	})

	t.Run("total not set", func(t *testing.T) {
		job := f.createJob(t, 0)
		won, _, err := f.jobs.TryFinalize(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("paused job waits for resume", func(t *testing.T) {
		job := f.createJob(t, 5)
		_, err := f.jobs.SetStatus(ctx, job.ID, model.JobStatusPaused)
		require.NoError(t, err)
		_, err = f.jobs.IncrementCounters(ctx, job.ID, 5, 5, 0)
		require.NoError(t, err)
		won, _, err := f.jobs.TryFinalize(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, won)

		_, err = f.jobs.SetStatus(ctx, job.ID, model.JobStatusProcessing)
		require.NoError(t, err)
		won, snap, err := f.jobs.TryFinalize(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, won)
		assert.Equal(t, model.JobStatusCompleted, snap.Status)
	})
}

func TestSQLJobRepository_MarkError(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	job := f.createJob(t, 10)

	changed, err := f.jobs.MarkError(ctx, job.ID, "queue unavailable")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.jobs.MarkError(ctx, job.ID, "second failure")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := f.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, got.Status)
	assert.Equal(t, "queue unavailable", got.ErrorMessage)

	_, err = f.jobs.MarkError(ctx, "missing", "x")
	assert.ErrorIs(t, err, exception.ErrJobNotFound)
}

func TestSQLJobRepository_SetStatus(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	job := f.createJob(t, 10)

	paused, err := f.jobs.SetStatus(ctx, job.ID, model.JobStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, paused.Status)

	again, err := f.jobs.SetStatus(ctx, job.ID, model.JobStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, again.Version)

	cancelled, err := f.jobs.SetStatus(ctx, job.ID, model.JobStatusCancelled)
	require.NoError(t, err)
	assert.NotNil(t, cancelled.CompletedAt)

	_, err = f.jobs.SetStatus(ctx, job.ID, model.JobStatusProcessing)
	require.Error(t, err)
	assert.True(t, exception.IsConfiguration(err))
}

func TestSQLJobRepository_FindStalledAndStats(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	old := model.NewJob("", "old.xlsx", "ops@example.com", "uploads/old.xlsx", 1)
	old.Status = model.JobStatusProcessing
	old.Total = 10
	old.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.jobs.Create(ctx, old))

	fresh := f.createJob(t, 10)
	f.createJob(t, 0)

	stalled, err := f.jobs.FindStalled(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, old.ID, stalled[0].ID)
	assert.NotEqual(t, fresh.ID, stalled[0].ID)

	stats, err := f.jobs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[model.JobStatusProcessing])
	assert.Equal(t, int64(1), stats[model.JobStatusValidating])
	assert.Equal(t, int64(0), stats[model.JobStatusCompleted])
	assert.Len(t, stats, len(model.AllJobStatuses))

	recent, err := f.jobs.FindRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
