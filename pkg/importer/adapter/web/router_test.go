package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/realtime/websocket"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/web"
	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/inmemory"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

type uploads struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (u *uploads) Save(ctx context.Context, objectName string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[objectName] = b
	return objectName, nil
}

func (u *uploads) Delete(ctx context.Context, fileRef string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, fileRef)
	return nil
}

type headers struct{ err error }

func (h headers) ValidateHeaders(ctx context.Context, fileRef string) error { return h.err }
func (h headers) CountRows(ctx context.Context, fileRef string) (int, error) { return 0, nil }
func (h headers) ReadRows(ctx context.Context, fileRef string, start, end int) ([]model.RawRow, error) {
	return nil, nil
}

type submitter struct{ ids []string }

func (s *submitter) SubmitJob(jobID, fileRef, contact string) { s.ids = append(s.ids, jobID) }

type quietNotifier struct{}

func (quietNotifier) NotifyProgress(ctx context.Context, job *model.Job) {}
func (quietNotifier) NotifyCompleted(ctx context.Context, contact string, job *model.Job) {}
func (quietNotifier) NotifyFailed(ctx context.Context, contact, jobID, message string) {}

type fixture struct {
	jobs      *inmemory.InMemoryJobRepository
	rowErrors *inmemory.InMemoryRowErrorRepository
	submitter *submitter
	hub       *websocket.Hub
	handler   http.Handler
}

func newFixture(t *testing.T, maxUploadMB int) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      inmemory.NewInMemoryJobRepository(),
		rowErrors: inmemory.NewInMemoryRowErrorRepository(),
		submitter: &submitter{},
		hub:       websocket.NewHub(""),
	}
	t.Cleanup(f.hub.Close)

	launcher := usecase.NewSimpleImportLauncher(f.jobs, &uploads{files: map[string][]byte{}}, headers{}, f.submitter, nil, "")
	explorer := usecase.NewSimpleImportExplorer(f.jobs, f.rowErrors, nil)
	operator := usecase.NewDefaultImportOperator(f.jobs, f.rowErrors, quietNotifier{})

	f.handler = web.NewRouter(web.Routes{
		Imports: web.NewImportHandler(launcher, explorer, operator, maxUploadMB),
		Stream:  f.hub,
		Metrics: metrics.NewPrometheusRecorder().Handler(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (f *fixture) seedJob(t *testing.T, id string) *model.Job {
	t.Helper()
	job := model.NewJob(id, "nomina.xlsx", "rrhh@empresa.com", "uploads/"+id+"_nomina.xlsx", 2048)
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func multipartUpload(t *testing.T, filename string, content []byte, email string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("email", email))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_Accepted(t *testing.T) {
	f := newFixture(t, 50)
	body, ct := multipartUpload(t, "nomina_marzo.xlsx", []byte("PK\x03\x04sheet"), "rrhh@empresa.com")

	rec, resp := f.do(t, http.MethodPost, "/api/importacion/upload", body, ct)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(http.StatusAccepted), resp["status"])
	assert.Equal(t, usecase.MsgImportStarted, resp["message"])

	data := resp["data"].(map[string]interface{})
	jobID := data["jobId"].(string)
	assert.NotEmpty(t, jobID)
	assert.Equal(t, "/api/importacion/status/"+jobID, data["statusUrl"])
	assert.Equal(t, "nomina_marzo.xlsx", data["filename"])
	assert.Equal(t, []string{jobID}, f.submitter.ids)

	job, err := f.jobs.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusValidating, job.Status)
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		email    string
		wantCode int
		wantMsg  string
	}{
		{name: "wrong extension", filename: "nomina.csv", email: "rrhh@empresa.com", wantCode: http.StatusBadRequest, wantMsg: "Only .xlsx files are accepted"},
		{name: "bad email", filename: "nomina.xlsx", email: "not-an-address", wantCode: http.StatusBadRequest, wantMsg: "A valid e-mail address is required"},
		{name: "missing file", filename: "", email: "rrhh@empresa.com", wantCode: http.StatusBadRequest, wantMsg: "A file is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 50)
			body, ct := multipartUpload(t, tt.filename, []byte("content"), tt.email)

			rec, resp := f.do(t, http.MethodPost, "/api/importacion/upload", body, ct)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.wantMsg, resp["message"])
			assert.Empty(t, f.submitter.ids)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, 1)
	body, ct := multipartUpload(t, "nomina.xlsx", bytes.Repeat([]byte("x"), 2<<20), "rrhh@empresa.com")

	rec, resp := f.do(t, http.MethodPost, "/api/importacion/upload", body, ct)

	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.Empty(t, f.submitter.ids)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, 50)
	f.seedJob(t, "job-1")
	require.NoError(t, f.jobs.SetTotal(context.Background(), "job-1", 10))

	rec, resp := f.do(t, http.MethodGet, "/api/importacion/status/job-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["jobId"])
	assert.Equal(t, string(model.JobStatusProcessing), data["status"])
	assert.Equal(t, float64(10), data["total"])

	rec, resp = f.do(t, http.MethodGet, "/api/importacion/status/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "job not found: missing", resp["message"])
}

func TestErrors_ListSummaryAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.seedJob(t, "job-1")
	row := model.RawRow{RowNumber: 3, Cells: []string{"E-1"}}
	require.NoError(t, f.rowErrors.SaveAll(ctx, []model.RowError{
		model.NewValidationRowError("job-1", row, "E-1", "base salary must be positive"),
		model.NewProcessingRowError("job-1", model.RawRow{RowNumber: 4}, "database unavailable"),
	}))

	rec, resp := f.do(t, http.MethodGet, "/api/importacion/job-1/errors", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	listed := data["errors"].([]interface{})
	require.Len(t, listed, 2)
	assert.Equal(t, float64(3), listed[0].(map[string]interface{})["rowNumber"])

	rec, resp = f.do(t, http.MethodGet, "/api/importacion/job-1/errors/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total"])
	byType := summary["byType"].(map[string]interface{})
	assert.Equal(t, float64(1), byType[string(model.RowErrorValidation)])
	assert.Equal(t, float64(1), byType[string(model.RowErrorProcessing)])

	rec, resp = f.do(t, http.MethodDelete, "/api/importacion/job-1/errors", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["data"].(map[string]interface{})["deleted"])

	rec, _ = f.do(t, http.MethodGet, "/api/importacion/missing/errors", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControl_PauseResumeCancel(t *testing.T) {
	f := newFixture(t, 50)
	f.seedJob(t, "job-1")
	require.NoError(t, f.jobs.SetTotal(context.Background(), "job-1", 10))

	rec, resp := f.do(t, http.MethodPost, "/api/importacion/job-1/pause", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(model.JobStatusPaused), resp["data"].(map[string]interface{})["status"])

	rec, _ = f.do(t, http.MethodPost, "/api/importacion/job-1/pause", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "pausing a paused job is a no-op")

	rec, resp = f.do(t, http.MethodPost, "/api/importacion/job-1/resume", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(model.JobStatusProcessing), resp["data"].(map[string]interface{})["status"])

	rec, _ = f.do(t, http.MethodPost, "/api/importacion/job-1/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodPost, "/api/importacion/job-1/resume", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["success"])

	rec, _ = f.do(t, http.MethodPost, "/api/importacion/missing/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsAndStats(t *testing.T) {
	f := newFixture(t, 50)
	f.seedJob(t, "job-1")
	f.seedJob(t, "job-2")
	require.NoError(t, f.jobs.SetTotal(context.Background(), "job-2", 5))

	rec, resp := f.do(t, http.MethodGet, "/api/importacion/jobs?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)

	rec, resp = f.do(t, http.MethodGet, "/api/importacion/jobs?email=rrhh@empresa.com", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["data"].([]interface{}), 2)

	rec, _ = f.do(t, http.MethodGet, "/api/importacion/jobs?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/importacion/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total"])
	byStatus := stats["byStatus"].(map[string]interface{})
	assert.Equal(t, float64(1), byStatus[string(model.JobStatusValidating)])
	assert.Equal(t, float64(1), byStatus[string(model.JobStatusProcessing)])
	assert.Equal(t, float64(0), byStatus[string(model.JobStatusCompleted)])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 50)

	rec, _ := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProgressWebsocket(t *testing.T) {
	f := newFixture(t, 50)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/importacion/job-1"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers("job-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.Broadcast(model.ProgressUpdate{JobID: "job-1", Total: 10, Processed: 4, Status: model.JobStatusProcessing})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got model.ProgressUpdate
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 4, got.Processed)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{exception.NewConfigurationError("repo", "job not found: x", exception.ErrJobNotFound), http.StatusNotFound},
		{exception.NewConfigurationError("repo", "bad transition", exception.ErrInvalidTransition), http.StatusConflict},
		{exception.NewConfigurationError("repo", "total already set", exception.ErrAlreadySet), http.StatusConflict},
		{exception.NewValidationError("launcher", "bad file", nil), http.StatusBadRequest},
		{exception.NewRejectionError("breaker", "open", exception.ErrCircuitOpen), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, web.StatusFor(tt.err), tt.err.Error())
	}
}
