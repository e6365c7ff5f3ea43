package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const (
	launcherModule = "import_launcher"

	// MsgImportStarted is returned on a successful submission.
	MsgImportStarted = "Import started successfully"
	// MsgInvalidFormat is returned when the header row does not match.
	MsgInvalidFormat = "Invalid Excel format. Check the headers."
)

// UploadRequest is one submitted spreadsheet.
type UploadRequest struct {
	Filename string    `validate:"required,max=255"`
	Content  io.Reader `validate:"required"`
	Size     int64     `validate:"gt=0"`
	Email    string    `validate:"required,email,max=255"`
}

// ImportResponse is returned by StartImport.
type ImportResponse struct {
	JobID     string `json:"jobId"`
	Message   string `json:"message"`
	StatusURL string `json:"statusUrl"`
	Filename  string `json:"filename"`
}

// SimpleImportLauncher implements ImportLauncher.
type SimpleImportLauncher struct {
	jobs            repository.JobRepository
	files           UploadStore
	reader          ports.RowReader
	submitter       JobSubmitter
	notifier        ports.Notifier
	validate        *validator.Validate
	statusURLPrefix string
}

var _ ImportLauncher = (*SimpleImportLauncher)(nil)

// NewSimpleImportLauncher creates the launcher. notifier may be nil.
func NewSimpleImportLauncher(
	jobs repository.JobRepository,
	files UploadStore,
	reader ports.RowReader,
	submitter JobSubmitter,
	notifier ports.Notifier,
	statusURLPrefix string,
) *SimpleImportLauncher {
	if statusURLPrefix == "" {
		statusURLPrefix = "/api/importacion/status/"
	}
	return &SimpleImportLauncher{
		jobs:            jobs,
		files:           files,
		reader:          reader,
		submitter:       submitter,
		notifier:        notifier,
		validate:        validator.New(),
		statusURLPrefix: statusURLPrefix,
	}
}

func (l *SimpleImportLauncher) checkRequest(req UploadRequest) error {
	if err := l.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return exception.NewValidationError(launcherModule, uploadMessage(verrs[0]), err)
		}
		return exception.NewValidationError(launcherModule, "invalid upload", err)
	}
	if !strings.EqualFold(path.Ext(req.Filename), ".xlsx") {
		return exception.NewValidationError(launcherModule, "Only .xlsx files are accepted", nil)
	}
	return nil
}

func uploadMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Filename":
		return "A file name is required"
	case "Content", "Size":
		return "The file is empty"
	case "Email":
		return "A valid e-mail address is required"
	default:
		return fmt.Sprintf("invalid %s", fe.Field())
	}
}

// StartImport implements ImportLauncher.
func (l *SimpleImportLauncher) StartImport(ctx context.Context, req UploadRequest) (*ImportResponse, error) {
	if err := l.checkRequest(req); err != nil {
		return nil, err
	}

	jobID := model.NewID()
	fileRef, err := l.files.Save(ctx, storage.ObjectName(jobID, req.Filename), req.Content)
	if err != nil {
		return nil, err
	}

	if err := l.reader.ValidateHeaders(ctx, fileRef); err != nil {
		l.discard(ctx, fileRef)
		if exception.IsValidation(err) {
			return nil, exception.NewValidationError(launcherModule, MsgInvalidFormat, err)
		}
		return nil, err
	}

	filename := path.Base(strings.ReplaceAll(req.Filename, "\\", "/"))
	job := model.NewJob(jobID, filename, req.Email, fileRef, req.Size)
	if err := l.jobs.Create(ctx, job); err != nil {
		l.discard(ctx, fileRef)
		return nil, err
	}
	if l.notifier != nil {
		l.notifier.NotifyProgress(ctx, job)
	}

	l.submitter.SubmitJob(jobID, fileRef, req.Email)
	logger.Infof("Import %s accepted: '%s' (%d bytes) from %s.", jobID, filename, req.Size, req.Email)

	return &ImportResponse{
		JobID:     jobID,
		Message:   MsgImportStarted,
		StatusURL: l.statusURLPrefix + jobID,
		Filename:  filename,
	}, nil
}

func (l *SimpleImportLauncher) discard(ctx context.Context, fileRef string) {
	if err := l.files.Delete(ctx, fileRef); err != nil {
		logger.Warnf("Could not delete rejected upload '%s': %v", fileRef, err)
	}
}
