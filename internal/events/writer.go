package events

import (
	"io"
	"net/http"

	"github.com/spherical/alttext/internal/domain"
)

// Framing selects how consecutive events are delimited.
type Framing int

const (
	// FramingSSE writes "data: <json>\n\n" records.
	FramingSSE Framing = iota
	// FramingNDJSON writes one JSON object per line.
	FramingNDJSON
)

// Writer writes encoded events to an underlying stream, flushing after each
// one when the stream supports it.
type Writer struct {
	w       io.Writer
	framing Framing
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer, framing Framing) *Writer {
	return &Writer{w: w, framing: framing}
}

// Write encodes and writes ev.
func (w *Writer) Write(ev domain.ProgressEvent) error {
	var (
		out []byte
		err error
	)
	if w.framing == FramingSSE {
		out, err = EncodeSSE(ev)
	} else {
		out, err = Encode(ev)
		out = append(out, '\n')
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(out); err != nil {
		return err
	}
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
