package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const (
	uploadField = "file"
	emailField  = "email"

	// multipart parts above this size are spooled to disk by net/http.
	multipartMemory = 8 << 20
)

// ErrorsResponse is the body of the row-error listing.
type ErrorsResponse struct {
	JobID  string           `json:"jobId"`
	Total  int              `json:"total"`
	Errors []model.RowError `json:"errors"`
}

// ErrorSummary is the body of the row-error summary.
type ErrorSummary struct {
	JobID  string                       `json:"jobId"`
	Total  int64                        `json:"total"`
	ByType map[model.RowErrorType]int64 `json:"byType"`
}

// ImportHandler serves the import API.
type ImportHandler struct {
	launcher       usecase.ImportLauncher
	explorer       usecase.ImportExplorer
	operator       usecase.ImportOperator
	maxUploadBytes int64
}

// NewImportHandler creates the handler. maxUploadMB <= 0 disables the size limit.
func NewImportHandler(launcher usecase.ImportLauncher, explorer usecase.ImportExplorer, operator usecase.ImportOperator, maxUploadMB int) *ImportHandler {
	return &ImportHandler{
		launcher:       launcher,
		explorer:       explorer,
		operator:       operator,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Upload handles POST /api/importacion/upload: a multipart form with the spreadsheet in
// "file" and the requester address in "email".
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "The file exceeds the maximum upload size")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		respondError(w, http.StatusBadRequest, "A file is required")
		return
	}
	defer file.Close()

	resp, err := h.launcher.StartImport(r.Context(), usecase.UploadRequest{
		Filename: header.Filename,
		Content:  file,
		Size:     header.Size,
		Email:    r.FormValue(emailField),
	})
	if err != nil {
		handleError(w, r, err, "The import could not be started")
		return
	}
	respondOK(w, http.StatusAccepted, resp, resp.Message)
}

// Status handles GET /api/importacion/status/{id}.
func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.explorer.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, "The job status could not be read")
		return
	}
	respondOK(w, http.StatusOK, view, "")
}

func (h *ImportHandler) Errors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rowErrors, err := h.explorer.ListErrors(r.Context(), jobID)
	if err != nil {
		handleError(w, r, err, "The job errors could not be read")
		return
	}
	if rowErrors == nil {
		rowErrors = []model.RowError{}
	}
	respondOK(w, http.StatusOK, ErrorsResponse{JobID: jobID, Total: len(rowErrors), Errors: rowErrors}, "")
}

func (h *ImportHandler) ErrorSummary(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	total, err := h.explorer.CountErrors(r.Context(), jobID)
	if err != nil {
		handleError(w, r, err, "The job errors could not be counted")
		return
	}
	byType, err := h.explorer.ErrorsByType(r.Context(), jobID)
	if err != nil {
		handleError(w, r, err, "The job errors could not be counted")
		return
	}
	respondOK(w, http.StatusOK, ErrorSummary{JobID: jobID, Total: total, ByType: byType}, "")
}

func (h *ImportHandler) DeleteErrors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	n, err := h.operator.DeleteErrors(r.Context(), jobID)
	if err != nil {
		handleError(w, r, err, "The job errors could not be deleted")
		return
	}
	respondOK(w, http.StatusOK, map[string]int64{"deleted": n}, "")
}

// Jobs handles GET /api/importacion/jobs. With ?email= it lists the jobs of one
// requester, otherwise the most recent ones (?limit=, default 20).
func (h *ImportHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []*model.Job
		err  error
	)
	if email := r.URL.Query().Get("email"); email != "" {
		jobs, err = h.explorer.JobsByEmail(r.Context(), email)
	} else {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				respondError(w, http.StatusBadRequest, "limit must be a positive number")
				return
			}
		}
		jobs, err = h.explorer.RecentJobs(r.Context(), limit)
	}
	if err != nil {
		handleError(w, r, err, "The jobs could not be listed")
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondOK(w, http.StatusOK, jobs, "")
}

func (h *ImportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.explorer.Stats(r.Context())
	if err != nil {
		handleError(w, r, err, "The job statistics could not be read")
		return
	}
	respondOK(w, http.StatusOK, stats, "")
}

func (h *ImportHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "paused", h.operator.Pause)
}

func (h *ImportHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resumed", h.operator.Resume)
}

func (h *ImportHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "cancelled", h.operator.Cancel)
}

func (h *ImportHandler) control(w http.ResponseWriter, r *http.Request, verb string, apply func(context.Context, string) (*model.Job, error)) {
	jobID := chi.URLParam(r, "id")
	job, err := apply(r.Context(), jobID)
	if err != nil {
		handleError(w, r, err, "The job could not be "+verb)
		return
	}
	logger.Infof("Job %s %s through the API.", jobID, verb)
	respondOK(w, http.StatusOK, model.NewJobStatusView(job, time.Now().UTC()), "Job "+verb)
}
