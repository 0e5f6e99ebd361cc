// Package server exposes the pipeline over HTTP, streaming progress events
// to the client as server-sent events.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/observability"
)

// RouterConfig holds the settings the routes need.
type RouterConfig struct {
	ServiceName    string
	MaxUploadBytes int64
	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// NewRouter creates the API router.
func NewRouter(logger *observability.Logger, pipeline domain.Pipeline, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "alttext"
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "healthy", "service": cfg.ServiceName})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	documents := NewDocumentHandler(logger, pipeline, cfg.MaxUploadBytes)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", documents.Submit)
	})

	return r
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// writeJSON writes v with status. The header is already sent when encoding
// fails, so the error is only logged.
func writeJSON(w http.ResponseWriter, logger *observability.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Int("status", status).Msg("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, logger *observability.Logger, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, logger, status, resp)
}
