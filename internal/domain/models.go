package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// DocumentKind identifies the container format of an input document
type DocumentKind string

const (
	KindPDF  DocumentKind = "pdf"
	KindDOCX DocumentKind = "docx"
)

// ParseKind parses a case-insensitive kind name
func ParseKind(s string) (DocumentKind, error) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPDF:
		return KindPDF, nil
	case KindDOCX:
		return KindDOCX, nil
	default:
		return "", UnsupportedKindError(s)
	}
}

// Document is the input of a single run. The caller owns Bytes and must not
// mutate them while the run is active.
type Document struct {
	Kind  DocumentKind
	Bytes []byte
	Name  string
}

// ContentHash is the 128-bit MD5 digest of an image's bytes
type ContentHash [md5.Size]byte

// HashBytes computes the content hash of b
func HashBytes(b []byte) ContentHash {
	return ContentHash(md5.Sum(b))
}

func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// SourceLocation records where an image was found. Page is set for PDF
// sources, Part and RelID for package (DOCX) sources. Position is 1-based in
// both cases.
type SourceLocation struct {
	Page     int
	Position int
	Part     string
	RelID    string
}

func (l SourceLocation) String() string {
	if l.Part != "" {
		if l.RelID != "" {
			return fmt.Sprintf("%s (%s)", l.Part, l.RelID)
		}
		return l.Part
	}
	return fmt.Sprintf("page %d, image %d", l.Page, l.Position)
}

// ImageRecord is one extracted image
type ImageRecord struct {
	SequenceIndex uint
	Location      SourceLocation
	Bytes         []byte
	Format        string
	Hash          ContentHash
	Width         int
	Height        int
}

// NewImageRecord builds a record and computes its content hash
func NewImageRecord(idx uint, loc SourceLocation, data []byte, format string) ImageRecord {
	return ImageRecord{
		SequenceIndex: idx,
		Location:      loc,
		Bytes:         data,
		Format:        format,
		Hash:          HashBytes(data),
	}
}

// Status is the result category of an annotation
type Status string

const (
	StatusOK      Status = "ok"
	StatusBlocked Status = "blocked"
	StatusFailed  Status = "failed"
)

// AnnotationOutcome is the caption result for one record
type AnnotationOutcome struct {
	SequenceIndex uint
	Text          string
	Status        Status
	Reason        string
	DuplicateOf   *uint
}

// Described returns a successful outcome
func Described(idx uint, text string) AnnotationOutcome {
	return AnnotationOutcome{SequenceIndex: idx, Text: text, Status: StatusOK}
}

// Blocked returns an outcome for a content-policy refusal
func Blocked(idx uint, reason string) AnnotationOutcome {
	return AnnotationOutcome{SequenceIndex: idx, Status: StatusBlocked, Reason: reason}
}

// FailedOutcome returns an outcome for an image whose caption could not be produced
func FailedOutcome(idx uint, reason string) AnnotationOutcome {
	return AnnotationOutcome{SequenceIndex: idx, Status: StatusFailed, Reason: reason}
}

// CopyFor returns the outcome re-targeted at a duplicate record at idx
func (o AnnotationOutcome) CopyFor(idx uint) AnnotationOutcome {
	first := o.SequenceIndex
	if o.DuplicateOf != nil {
		first = *o.DuplicateOf
	}
	c := o
	c.SequenceIndex = idx
	c.DuplicateOf = &first
	return c
}

// Result pairs a record with its outcome
type Result struct {
	Record  ImageRecord
	Outcome AnnotationOutcome
}

// ProgressEvent is one item of a run's event stream. The concrete types are
// InProgress, Completed and Failed.
type ProgressEvent interface {
	progressEvent()
}

// InProgress reports that completed of total records have an outcome
type InProgress struct {
	Completed uint
	Total     uint
}

// Completed is the terminal event of a successful run
type Completed struct {
	Results []Result
}

// Failed is the terminal event of a run that could not extract its document
type Failed struct {
	Reason string
}

func (InProgress) progressEvent() {}
func (Completed) progressEvent()  {}
func (Failed) progressEvent()     {}

// Percent returns the completion percentage, 100 for an empty run
func (p InProgress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// IsTerminal reports whether ev ends a stream
func IsTerminal(ev ProgressEvent) bool {
	switch ev.(type) {
	case Completed, *Completed, Failed, *Failed:
		return true
	default:
		return false
	}
}

// Credential is one API key in the caption pool
type Credential struct {
	Name string
	Key  string
}

func (c Credential) String() string {
	if len(c.Key) <= 4 {
		return c.Name + ":****"
	}
	return c.Name + ":****" + c.Key[len(c.Key)-4:]
}
