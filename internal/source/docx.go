package source

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/observability"
)

const (
	docxDocumentPart = "word/document.xml"
	docxRelsPart     = "word/_rels/document.xml.rels"
	imageRelType     = "/relationships/image"
)

// DOCXSource extracts images referenced from the main document part of an
// Office Open XML word-processing package.
type DOCXSource struct {
	logger *observability.Logger
	opts   Options
}

// NewDOCXSource creates a DOCX image source.
func NewDOCXSource(logger *observability.Logger, opts Options) *DOCXSource {
	return &DOCXSource{
		logger: logger.WithOperation("docx_source"),
		opts:   opts,
	}
}

// Kind implements domain.ImageSource.
func (s *DOCXSource) Kind() domain.DocumentKind {
	return domain.KindDOCX
}

// docxRelationships represents the .rels XML structure.
type docxRelationships struct {
	XMLName xml.Name           `xml:"Relationships"`
	Rels    []docxRelationship `xml:"Relationship"`
}

type docxRelationship struct {
	ID         string `xml:"Id,attr"`
	Target     string `xml:"Target,attr"`
	Type       string `xml:"Type,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

// Extract yields images in relationship-table order.
func (s *DOCXSource) Extract(ctx context.Context, doc domain.Document) iter.Seq2[domain.ImageRecord, error] {
	return func(yield func(domain.ImageRecord, error) bool) {
		zr, err := zip.NewReader(bytes.NewReader(doc.Bytes), int64(len(doc.Bytes)))
		if err != nil {
			yield(domain.ImageRecord{}, domain.MalformedDocumentError("cannot open DOCX package", err))
			return
		}

		fileIndex := make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			fileIndex[f.Name] = f
		}

		if fileIndex[docxDocumentPart] == nil {
			yield(domain.ImageRecord{}, domain.MalformedDocumentError(docxDocumentPart+" not found in package", nil))
			return
		}

		rels, err := readRelationships(fileIndex)
		if err != nil {
			yield(domain.ImageRecord{}, domain.MalformedDocumentError("cannot read document relationships", err))
			return
		}

		var seq uint
		pos := 0
		for _, rel := range rels {
			if !strings.HasSuffix(rel.Type, imageRelType) {
				continue
			}
			if strings.EqualFold(rel.TargetMode, "External") {
				s.logger.Debug().Str("rel_id", rel.ID).Str("target", rel.Target).Msg("Skipping linked image")
				continue
			}
			pos++

			if err := ctx.Err(); err != nil {
				yield(domain.ImageRecord{}, err)
				return
			}

			part := resolvePart(rel.Target)
			loc := domain.SourceLocation{Part: part, RelID: rel.ID, Position: pos}

			data, err := readPart(fileIndex, part)
			if err != nil {
				s.skip(loc, domain.ImageDecodeError("cannot read media part", err))
				continue
			}

			format, w, h, err := probe(data)
			if err != nil {
				// EMF and WMF drawings end up here too
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

func (s *DOCXSource) skip(loc domain.SourceLocation, err error) {
	s.logger.Warn().Err(err).Str("location", loc.String()).Msg("Skipping image")
}

// readRelationships parses the main document's relationship table. A package
// without one simply has no images.
func readRelationships(fileIndex map[string]*zip.File) ([]docxRelationship, error) {
	if fileIndex[docxRelsPart] == nil {
		return nil, nil
	}

	data, err := readPart(fileIndex, docxRelsPart)
	if err != nil {
		return nil, err
	}

	var rels docxRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxRelsPart, err)
	}
	return rels.Rels, nil
}

// resolvePart turns a relationship target into a package part name. Targets
// are relative to word/ unless they start with a slash.
func resolvePart(target string) string {
	target = strings.ReplaceAll(target, "\\", "/")
	if strings.HasPrefix(target, "/") {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Clean(path.Join("word", target))
}

func readPart(fileIndex map[string]*zip.File, name string) ([]byte, error) {
	zf := fileIndex[name]
	if zf == nil {
		return nil, fmt.Errorf("part %s not found", name)
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
