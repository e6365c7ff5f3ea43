// Package notification fans job events out to the progress cache, real-time
// subscribers, the notification queue and email.
package notification

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// FanOutNotifier implements ports.Notifier. Every channel is best effort: failures are
// logged and never reach the caller. Nil collaborators are skipped.
type FanOutNotifier struct {
	cache       ports.ProgressCache
	broadcaster ports.ProgressBroadcaster
	publisher   ports.ProgressPublisher
	mail        ports.MailGateway
	recorder    metrics.MetricRecorder
	now         func() time.Time
}

// NewFanOutNotifier creates a FanOutNotifier.
func NewFanOutNotifier(
	cache ports.ProgressCache,
	broadcaster ports.ProgressBroadcaster,
	publisher ports.ProgressPublisher,
	mail ports.MailGateway,
	recorder metrics.MetricRecorder,
) *FanOutNotifier {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &FanOutNotifier{
		cache:       cache,
		broadcaster: broadcaster,
		publisher:   publisher,
		mail:        mail,
		recorder:    recorder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NotifyProgress writes the snapshot through to the cache and pushes a progress update.
func (n *FanOutNotifier) NotifyProgress(ctx context.Context, job *model.Job) {
	if job == nil {
		return
	}
	if n.cache != nil {
		if err := n.cache.Put(ctx, job); err != nil {
			logger.Warnf("Progress cache update failed for job %s: %v", job.ID, err)
		}
	}
	n.push(ctx, model.NewProgressUpdate(job, n.now()))
}

// NotifyCompleted pushes the final snapshot and emails the requester.
func (n *FanOutNotifier) NotifyCompleted(ctx context.Context, contact string, job *model.Job) {
	if job == nil {
		return
	}
	n.NotifyProgress(ctx, job)
	n.recorder.RecordJobFinished(ctx, model.JobStatusCompleted)
	logger.Infof("Import completed: %s", job.Summary())

	if contact == "" || n.mail == nil {
		return
	}
	body, err := RenderCompleted(job, n.now())
	if err != nil {
		logger.Errorf("Completion email for job %s not rendered: %v", job.ID, err)
		return
	}
	if err := n.mail.Send(ctx, contact, CompletedSubject(job.ID), body); err != nil {
		logger.Errorf("Completion email for job %s not sent: %v", job.ID, err)
	}
}

// NotifyFailed marks the cached snapshot as failed, pushes an ERROR update and emails
// the requester.
func (n *FanOutNotifier) NotifyFailed(ctx context.Context, contact, jobID, message string) {
	now := n.now()
	if n.cache != nil {
		if err := n.cache.MarkFailed(ctx, jobID, message, now); err != nil {
			logger.Warnf("Progress cache update failed for job %s: %v", jobID, err)
		}
	}
	n.push(ctx, model.ProgressUpdate{
		JobID:     jobID,
		Status:    model.JobStatusError,
		Message:   "Processing error: " + message,
		Timestamp: now,
	})
	n.recorder.RecordJobFinished(ctx, model.JobStatusError)
	logger.Errorf("Import %s failed: %s", jobID, message)

	if contact == "" || n.mail == nil {
		return
	}
	body, err := RenderFailed(jobID, message)
	if err != nil {
		logger.Errorf("Failure email for job %s not rendered: %v", jobID, err)
		return
	}
	if err := n.mail.Send(ctx, contact, FailedSubject(jobID), body); err != nil {
		logger.Errorf("Failure email for job %s not sent: %v", jobID, err)
	}
}

func (n *FanOutNotifier) push(ctx context.Context, update model.ProgressUpdate) {
	if n.broadcaster != nil {
		n.broadcaster.Broadcast(update)
	}
	if n.publisher != nil {
		if err := n.publisher.PublishProgress(ctx, update); err != nil {
			logger.Warnf("Progress publish failed for job %s: %v", update.JobID, err)
		}
	}
}

var _ ports.Notifier = (*FanOutNotifier)(nil)
