package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const timestampLayout = "2006-01-02T15:04:05"

// Response is the envelope of every JSON answer of the API.
type Response struct {
	Status        int         `json:"status"`
	StatusMessage string      `json:"statusMessage"`
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Message       string      `json:"message,omitempty"`
	Timestamp     string      `json:"timestamp"`
}

func newResponse(status int, success bool, data interface{}, message string) Response {
	return Response{
		Status:        status,
		StatusMessage: http.StatusText(status),
		Success:       success,
		Data:          data,
		Message:       message,
		Timestamp:     time.Now().Format(timestampLayout),
	}
}

func respondJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func respondOK(w http.ResponseWriter, status int, data interface{}, message string) {
	respondJSON(w, status, newResponse(status, true, data, message))
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, newResponse(status, false, nil, message))
}

// StatusFor maps a pipeline error to the HTTP status returned to the client.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, exception.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrInvalidTransition), errors.Is(err, exception.ErrAlreadySet):
		return http.StatusConflict
	case exception.IsValidation(err):
		return http.StatusBadRequest
	case exception.IsRejection(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the error response. Server faults never leak their cause.
func handleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		respondError(w, status, fallback)
		return
	}
	logger.Debugf("%s %s answered %d: %v", r.Method, r.URL.Path, status, err)
	respondError(w, status, clientMessage(err))
}

func clientMessage(err error) string {
	var ie *exception.ImportError
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	return err.Error()
}
