// Package web exposes the import pipeline over HTTP: uploads, job status, row errors,
// operator transitions, the progress websocket and the Prometheus endpoint.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// ProgressStream upgrades a request to a live progress feed of one job.
type ProgressStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, jobID string)
}

// Routes are the collaborators mounted by NewRouter. Stream and Metrics may be nil.
type Routes struct {
	Imports       *ImportHandler
	Stream        ProgressStream
	Metrics       http.Handler
	AllowedOrigin string
}

// NewRouter builds the chi router of the API.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if routes.AllowedOrigin != "" {
		r.Use(allowOrigin(routes.AllowedOrigin))
	}

	h := routes.Imports
	r.Route("/api/importacion", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Get("/status/{id}", h.Status)
		r.Get("/stats", h.Stats)
		r.Get("/jobs", h.Jobs)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/errors", h.Errors)
			r.Get("/errors/summary", h.ErrorSummary)
			r.Delete("/errors", h.DeleteErrors)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/cancel", h.Cancel)
		})
	})

	if routes.Stream != nil {
		r.Get("/ws/importacion/{jobId}", func(w http.ResponseWriter, r *http.Request) {
			routes.Stream.ServeWS(w, r, chi.URLParam(r, "jobId"))
		})
	}
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Warnf("Failed to write health check response: %v", err)
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugf("%s %s -> %d (%d bytes, %s) request_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func allowOrigin(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
