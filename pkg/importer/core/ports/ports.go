// Package ports declares the collaborators the pipeline talks to: file readers, the
// broker, the progress cache, mail and notification fan-out.
package ports

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// RowReader reads data rows of an uploaded spreadsheet. Row numbers are 1-based and
// exclude the header row.
type RowReader interface {
	// ValidateHeaders checks the header row against model.ExpectedHeaders.
	ValidateHeaders(ctx context.Context, fileRef string) error
	// CountRows returns the number of non-blank data rows.
	CountRows(ctx context.Context, fileRef string) (int, error)
	// ReadRows returns the non-blank data rows numbered start..end inclusive.
	ReadRows(ctx context.Context, fileRef string, start, end int) ([]model.RawRow, error)
}

// ChunkPublisher sends chunk messages to the work queue.
type ChunkPublisher interface {
	PublishChunk(ctx context.Context, msg model.ChunkMessage) error
}

// ProgressPublisher sends progress updates to the notification routing key.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, update model.ProgressUpdate) error
}

// ProgressBroadcaster pushes progress updates to real-time subscribers of a job.
type ProgressBroadcaster interface {
	Broadcast(update model.ProgressUpdate)
}

// ProgressCache holds the latest job snapshot for fast status reads.
type ProgressCache interface {
	// Put keeps the cached snapshot when it is newer than job or terminal.
	Put(ctx context.Context, job *model.Job) error
	// MarkFailed records the ERROR state of a job in the cache.
	MarkFailed(ctx context.Context, jobID, message string, at time.Time) error
	// Get reports false on a miss.
	Get(ctx context.Context, jobID string) (*model.Job, bool, error)
	Delete(ctx context.Context, jobID string) error
}

// MailGateway delivers an HTML message.
type MailGateway interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Notifier fans job events out to the cache, subscribers and mail.
// Implementations are best effort and only log failures.
type Notifier interface {
	// NotifyProgress is called after every counter update or status change.
	NotifyProgress(ctx context.Context, job *model.Job)
	// NotifyCompleted is called once, by the caller that won TryFinalize.
	NotifyCompleted(ctx context.Context, contact string, job *model.Job)
	// NotifyFailed is called once, by the caller whose MarkError returned true.
	NotifyFailed(ctx context.Context, contact, jobID, message string)
}
