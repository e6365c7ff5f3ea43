package consumer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/consumer"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/deadletter"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/resilience"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/inmemory"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

func row(n int) model.RawRow {
	return model.RawRow{
		RowNumber: n + 1,
		Cells: []string{
			fmt.Sprintf("E%05d", n), "Ana Torres", "Analyst",
			"15000", "500", "1200", "14300", "2024-03", "2024-03-31",
		},
	}
}

// sheetReader serves rows 1..total; rows listed in invalid get a zero base salary.
type sheetReader struct {
	mu       sync.Mutex
	total    int
	invalid  map[int]bool
	failures int
	reads    int
}

func (r *sheetReader) ValidateHeaders(ctx context.Context, fileRef string) error { return nil }
func (r *sheetReader) CountRows(ctx context.Context, fileRef string) (int, error) {
	return r.total, nil
}
func (r *sheetReader) ReadRows(ctx context.Context, fileRef string, start, end int) ([]model.RawRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.failures != 0 {
		if r.failures > 0 {
			r.failures--
		}
		return nil, exception.NewTransientError("reader", "storage timeout", nil)
	}
	rows := make([]model.RawRow, 0, end-start+1)
	for n := start; n <= end && n <= r.total; n++ {
		rr := row(n)
		if r.invalid[n] {
			rr.Cells[3] = "0"
		}
		rows = append(rows, rr)
	}
	return rows, nil
}

type flakyRowErrors struct {
	repository.RowErrorRepository
	mu    sync.Mutex
	fails int
}

func (f *flakyRowErrors) SaveAll(ctx context.Context, rowErrors []model.RowError) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return exception.NewTransientError("rowerrors", "connection reset", nil)
	}
	f.mu.Unlock()
	return f.RowErrorRepository.SaveAll(ctx, rowErrors)
}

type countingNotifier struct {
	mu        sync.Mutex
	progress  int
	completed []*model.Job
	failed    []string
}

func (n *countingNotifier) NotifyProgress(ctx context.Context, job *model.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress++
}
func (n *countingNotifier) NotifyCompleted(ctx context.Context, contact string, job *model.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job)
}
func (n *countingNotifier) NotifyFailed(ctx context.Context, contact, jobID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, message)
}

type fixture struct {
	jobs      *inmemory.InMemoryJobRepository
	records   *inmemory.InMemoryRecordRepository
	rowErrors *flakyRowErrors
	reader    *sheetReader
	notifier  *countingNotifier
	consumer  *consumer.Consumer
}

func newFixture(t *testing.T, total int) *fixture {
	ctx := context.Background()
	f := &fixture{
		jobs:      inmemory.NewInMemoryJobRepository(),
		records:   inmemory.NewInMemoryRecordRepository(),
		rowErrors: &flakyRowErrors{RowErrorRepository: inmemory.NewInMemoryRowErrorRepository()},
		reader:    &sheetReader{total: total, invalid: map[int]bool{}},
		notifier:  &countingNotifier{},
	}
	require.NoError(t, f.jobs.Create(ctx, model.NewJob("job-1", "nomina.xlsx", "ops@example.com", "ref", 1)))
	if total > 0 {
		require.NoError(t, f.jobs.SetTotal(ctx, "job-1", total))
	}

	wrapper := resilience.NewWrapper("test", config.NewConfig().Importer.Resilience, nil,
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	f.consumer = consumer.NewConsumer(consumer.Deps{
		Jobs:       f.jobs,
		Records:    f.records,
		RowErrors:  f.rowErrors,
		Reader:     f.reader,
		Wrapper:    wrapper,
		Notifier:   f.notifier,
		DeadLetter: deadletter.NewHandler(f.jobs, f.notifier),
	})
	return f
}

func chunks(total, size int) []model.ChunkMessage {
	ranges := model.Partition(total, size)
	msgs := make([]model.ChunkMessage, 0, len(ranges))
	for _, r := range ranges {
		msgs = append(msgs, model.NewChunkMessage("job-1", "ref", "ops@example.com", r, len(ranges)))
	}
	return msgs
}

func TestHandleChunk_OneInvalidRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	f.reader.invalid[501] = true

	f.consumer.HandleChunk(ctx, chunks(1000, 1000)[0])

	n, err := f.records.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(999), n)

	errs, err := f.rowErrors.FindByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, model.RowErrorValidation, errs[0].Type)
	assert.Equal(t, 502, errs[0].RowNumber)

	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, job.Processed)
	assert.Equal(t, 999, job.Success)
	assert.Equal(t, 1, job.Errors)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Len(t, f.notifier.completed, 1)
}

func TestHandleChunk_ConcurrentChunksFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2500)

	var wg sync.WaitGroup
	for _, msg := range chunks(2500, 1000) {
		wg.Add(1)
		go func(msg model.ChunkMessage) {
			defer wg.Done()
			f.consumer.HandleChunk(ctx, msg)
		}(msg)
	}
	wg.Wait()

	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 2500, job.Processed)
	assert.Equal(t, job.Processed, job.Success+job.Errors)
	assert.Len(t, f.notifier.completed, 1)
	assert.Equal(t, 3, f.notifier.progress)
}

func TestHandleChunk_CancelledJobIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	_, err := f.jobs.SetStatus(ctx, "job-1", model.JobStatusCancelled)
	require.NoError(t, err)

	f.consumer.HandleChunk(ctx, chunks(1000, 1000)[0])

	assert.Equal(t, 0, f.reader.reads)
	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, job.Processed)
	assert.Equal(t, model.JobStatusCancelled, job.Status)
	assert.Empty(t, f.notifier.completed)
}

func TestHandleChunk_PausedJobCountsButDoesNotFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	_, err := f.jobs.SetStatus(ctx, "job-1", model.JobStatusPaused)
	require.NoError(t, err)

	f.consumer.HandleChunk(ctx, chunks(1000, 1000)[0])

	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, job.Processed)
	assert.Equal(t, model.JobStatusPaused, job.Status)
	assert.Empty(t, f.notifier.completed)
}

func TestHandleChunk_RetriesWithoutDoubleCounting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.reader.failures = 1
	f.reader.invalid[3] = true
	f.rowErrors.fails = 1

	f.consumer.HandleChunk(ctx, chunks(10, 1000)[0])

	assert.Equal(t, 2, f.reader.reads)
	count, err := f.rowErrors.CountByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, job.Processed)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Empty(t, f.notifier.failed)
}

func TestHandleChunk_ExhaustionDeadLettersOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2500)
	f.reader.failures = -1

	msgs := chunks(2500, 1000)
	f.consumer.HandleChunk(ctx, msgs[0])
	f.consumer.HandleChunk(ctx, msgs[1])

	assert.Equal(t, 3, f.reader.reads)
	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Equal(t, "Error processing chunk (rows 1-1000): storage timeout", job.ErrorMessage)
	assert.Len(t, f.notifier.failed, 1)
}

func TestHandleChunk_UnknownJobIsNotRetried(t *testing.T) {
	f := newFixture(t, 10)
	msg := chunks(10, 1000)[0]
	msg.JobID = "ghost"

	f.consumer.HandleChunk(context.Background(), msg)
	assert.Equal(t, 0, f.reader.reads)
	assert.Empty(t, f.notifier.failed)
}

func TestProcess_SingleAttempt(t *testing.T) {
	f := newFixture(t, 10)
	f.reader.failures = 1

	err := f.consumer.Process(context.Background(), chunks(10, 1000)[0])
	require.Error(t, err)
	assert.True(t, exception.IsTemporary(err))
	assert.Equal(t, 1, f.reader.reads)
}

// unreadableFinalize wins TryFinalize but reports a failed re-read of the job.
type unreadableFinalize struct {
	*inmemory.InMemoryJobRepository
	calls int
}

func (u *unreadableFinalize) TryFinalize(ctx context.Context, jobID string) (bool, *model.Job, error) {
	u.calls++
	finalized, _, err := u.InMemoryJobRepository.TryFinalize(ctx, jobID)
	if finalized {
		return true, nil, exception.NewTransientError("jobs", "connection reset while re-reading job", err)
	}
	return finalized, nil, err
}

func TestHandleChunk_CompletionSurvivesFailedReread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	jobs := &unreadableFinalize{InMemoryJobRepository: f.jobs}

	wrapper := resilience.NewWrapper("test", config.NewConfig().Importer.Resilience, nil,
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	c := consumer.NewConsumer(consumer.Deps{
		Jobs:       jobs,
		Records:    f.records,
		RowErrors:  f.rowErrors,
		Reader:     f.reader,
		Wrapper:    wrapper,
		Notifier:   f.notifier,
		DeadLetter: deadletter.NewHandler(jobs, f.notifier),
	})

	c.HandleChunk(ctx, chunks(10, 1000)[0])

	assert.Equal(t, 1, jobs.calls)
	require.Len(t, f.notifier.completed, 1)
	done := f.notifier.completed[0]
	require.NotNil(t, done)
	assert.Equal(t, "job-1", done.ID)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 10, done.Processed)
	assert.Empty(t, f.notifier.failed)

	job, err := f.jobs.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}
