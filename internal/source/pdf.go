package source

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/net/html"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/observability"
)

// PDFSource extracts embedded images from PDF documents using MuPDF.
type PDFSource struct {
	logger *observability.Logger
	opts   Options
}

// NewPDFSource creates a PDF image source.
func NewPDFSource(logger *observability.Logger, opts Options) *PDFSource {
	return &PDFSource{
		logger: logger.WithOperation("pdf_source"),
		opts:   opts,
	}
}

// Kind implements domain.ImageSource.
func (s *PDFSource) Kind() domain.DocumentKind {
	return domain.KindPDF
}

// Extract walks pages in order and, within a page, images in content-stream
// order. MuPDF's structured-text HTML output inlines every image on the page
// as a data URI, which is what gets parsed here.
func (s *PDFSource) Extract(ctx context.Context, doc domain.Document) iter.Seq2[domain.ImageRecord, error] {
	return func(yield func(domain.ImageRecord, error) bool) {
		if len(doc.Bytes) == 0 {
			yield(domain.ImageRecord{}, domain.MalformedDocumentError("empty PDF", nil))
			return
		}

		pdf, err := fitz.NewFromMemory(doc.Bytes)
		if err != nil {
			yield(domain.ImageRecord{}, domain.MalformedDocumentError("cannot open PDF", err))
			return
		}
		defer pdf.Close()

		var seq uint
		pages := pdf.NumPage()
		for page := 0; page < pages; page++ {
			if err := ctx.Err(); err != nil {
				yield(domain.ImageRecord{}, err)
				return
			}

			markup, err := pdf.HTML(page, false)
			if err != nil {
				s.logger.Warn().Err(err).Int("page", page+1).Msg("Skipping page that failed to render")
				continue
			}

			for pos, uri := range imageDataURIs(markup) {
				loc := domain.SourceLocation{Page: page + 1, Position: pos + 1}

				data, err := decodeDataURI(uri)
				if err != nil {
					s.skip(loc, domain.ImageDecodeError("invalid inline image data", err))
					continue
				}

				format, w, h, err := probe(data)
				if err != nil {
					s.skip(loc, domain.ImageDecodeError("undecodable image", err))
					continue
				}
				if !s.opts.accept(w, h) {
					s.logger.Debug().Str("location", loc.String()).Int("width", w).Int("height", h).
						Msg("Skipping image below minimum dimension")
					continue
				}

				rec := domain.NewImageRecord(seq, loc, data, format)
				rec.Width, rec.Height = w, h
				seq++
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (s *PDFSource) skip(loc domain.SourceLocation, err error) {
	s.logger.Warn().Err(err).Str("location", loc.String()).Msg("Skipping image")
}

// imageDataURIs returns the src of every <img> carrying an inline data URI,
// in document order.
func imageDataURIs(markup string) []string {
	var uris []string
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return uris
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && strings.HasPrefix(string(val), "data:") {
					uris = append(uris, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

var errNotBase64URI = errors.New("data URI is not base64 encoded")

// decodeDataURI decodes a "data:<mime>;base64,<payload>" URI.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, errNotBase64URI
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
}
