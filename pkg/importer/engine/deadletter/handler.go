// Package deadletter handles chunks that failed every attempt.
package deadletter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Handler fails the job of a dead chunk and notifies the requester once.
type Handler struct {
	jobs     repository.JobRepository
	notifier ports.Notifier
}

// NewHandler creates a Handler.
func NewHandler(jobs repository.JobRepository, notifier ports.Notifier) *Handler {
	return &Handler{jobs: jobs, notifier: notifier}
}

// Message returns the job error recorded for a dead chunk.
func Message(msg model.ChunkMessage, cause error) string {
	return fmt.Sprintf("Error processing chunk (rows %d-%d): %s", msg.StartRow, msg.EndRow, exception.ExtractErrorMessage(cause))
}

// Handle marks the job ERROR unless it is gone or already terminal. It never fails.
func (h *Handler) Handle(ctx context.Context, msg model.ChunkMessage, cause error) {
	logger.Errorf("Chunk %s exhausted its attempts: %v", msg, cause)

	job, err := h.jobs.FindByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, exception.ErrJobNotFound) {
			logger.Warnf("Dead chunk %s belongs to an unknown job; nothing to do.", msg.MessageID())
		} else {
			logger.Errorf("Could not load job %s for dead chunk: %v", msg.JobID, err)
		}
		return
	}
	if job.Status.IsTerminal() {
		logger.Infof("Job %s is already %s; dead chunk %s ignored.", job.ID, job.Status, msg.MessageID())
		return
	}

	text := Message(msg, cause)
	marked, err := h.jobs.MarkError(ctx, msg.JobID, text)
	if err != nil {
		logger.Errorf("Could not mark job %s as failed: %v", msg.JobID, err)
		return
	}
	if marked {
		h.notifier.NotifyFailed(ctx, msg.Contact, msg.JobID, text)
	}
}

// Module provides the dead-letter Handler.
var Module = fx.Options(
	fx.Provide(NewHandler),
)
