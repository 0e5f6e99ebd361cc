package domain

import (
	"context"
	"iter"
)

// ImageSource enumerates the embedded images of one document kind
type ImageSource interface {
	// Kind returns the document kind this source parses
	Kind() DocumentKind

	// Extract returns a lazy, single-pass sequence of records in traversal
	// order. A non-nil error element is a whole-document failure and ends the
	// sequence. Images that cannot be decoded are skipped, never yielded.
	Extract(ctx context.Context, doc Document) iter.Seq2[ImageRecord, error]
}

// Describer produces alt text for a single image
type Describer interface {
	// Describe returns the caption for image, or an error of type
	// ErrorTypeBlocked or ErrorTypeFailed
	Describe(ctx context.Context, image []byte) (string, error)
}

// Pipeline runs a document through extraction, deduplication and annotation
type Pipeline interface {
	// Run starts a run and returns its event stream. The channel is closed
	// after the terminal event.
	Run(ctx context.Context, doc Document) <-chan ProgressEvent
}
