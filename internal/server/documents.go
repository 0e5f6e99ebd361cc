package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/events"
	"github.com/spherical/alttext/internal/observability"
	"github.com/spherical/alttext/internal/source"
)

const defaultMaxUploadBytes = 16 << 20

// DocumentHandler accepts uploaded documents and streams their run.
type DocumentHandler struct {
	logger    *observability.Logger
	pipeline  domain.Pipeline
	maxUpload int64
}

// NewDocumentHandler creates a DocumentHandler. A non-positive maxUpload
// selects the 16 MiB default.
func NewDocumentHandler(logger *observability.Logger, pipeline domain.Pipeline, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &DocumentHandler{
		logger:    logger.WithOperation("documents"),
		pipeline:  pipeline,
		maxUpload: maxUpload,
	}
}

// Submit handles POST /v1/documents. The body is the raw document. The kind
// comes from ?kind= or is detected from the content and ?name=.
func (h *DocumentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "document too large", err.Error())
			return
		}
		writeError(w, h.logger, http.StatusBadRequest, "cannot read document", err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "empty document", "")
		return
	}

	var kind domain.DocumentKind
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err = domain.ParseKind(k)
	} else {
		kind, err = source.DetectKind(name, data)
	}
	if err != nil {
		writeError(w, h.logger, http.StatusUnsupportedMediaType, "unsupported document", err.Error())
		return
	}

	h.logger.Info().
		Str("kind", string(kind)).
		Str("document", name).
		Int("bytes", len(data)).
		Msg("Document accepted")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// the request context ends when the client goes away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := events.NewWriter(w, events.FramingSSE)
	for ev := range h.pipeline.Run(ctx, domain.Document{Kind: kind, Bytes: data, Name: name}) {
		if ctx.Err() != nil {
			continue
		}
		if err := out.Write(ev); err != nil {
			h.logger.Warn().Err(err).Msg("Event stream write failed, cancelling run")
			cancel()
		}
	}
}
