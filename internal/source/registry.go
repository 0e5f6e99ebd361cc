// Package source enumerates the embedded raster images of PDF and DOCX
// documents as ordered ImageRecords.
package source

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/observability"
)

// Options tune what counts as an extractable image.
type Options struct {
	// MinDimension drops images narrower or shorter than this many pixels.
	// Values below 1 accept everything.
	MinDimension int
}

// Registry maps document kinds to their image sources.
type Registry struct {
	sources map[domain.DocumentKind]domain.ImageSource
}

// NewRegistry returns a registry with the PDF and DOCX sources registered.
func NewRegistry(logger *observability.Logger, opts Options) *Registry {
	r := &Registry{sources: make(map[domain.DocumentKind]domain.ImageSource)}
	r.Register(NewPDFSource(logger, opts))
	r.Register(NewDOCXSource(logger, opts))
	return r
}

// Register adds or replaces the source for its kind.
func (r *Registry) Register(src domain.ImageSource) {
	r.sources[src.Kind()] = src
}

// Get returns the source for kind.
func (r *Registry) Get(kind domain.DocumentKind) (domain.ImageSource, error) {
	src, ok := r.sources[kind]
	if !ok {
		return nil, domain.UnsupportedKindError(string(kind))
	}
	return src, nil
}

var (
	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	docxEntry = []byte("word/document.xml")
)

// DetectKind guesses the document kind from its leading bytes, falling back
// to the file extension.
func DetectKind(name string, data []byte) (domain.DocumentKind, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, pdfMagic) {
		return domain.KindPDF, nil
	}
	if bytes.HasPrefix(data, zipMagic) && bytes.Contains(data, docxEntry) {
		return domain.KindDOCX, nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return domain.ParseKind(ext)
}

// probe validates that data is a decodable bitmap and returns its format
// name and dimensions.
func probe(data []byte) (string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}

// accept applies Options to a probed image.
func (o Options) accept(w, h int) bool {
	return o.MinDimension < 1 || (w >= o.MinDimension && h >= o.MinDimension)
}
