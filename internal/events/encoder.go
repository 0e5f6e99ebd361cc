// Package events serializes pipeline progress events into their wire form.
//
// Every event is one JSON object whose "type" field is one of "progress",
// "completed" or "failed". Field names are part of the external contract.
package events

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/spherical/alttext/internal/domain"
)

const (
	TypeProgress  = "progress"
	TypeCompleted = "completed"
	TypeFailed    = "failed"
)

// Location is the wire form of domain.SourceLocation.
type Location struct {
	Page     int    `json:"page,omitempty"`
	Part     string `json:"part,omitempty"`
	RelID    string `json:"rel_id,omitempty"`
	Position int    `json:"position"`
}

// Result is the wire form of one domain.Result.
type Result struct {
	Index       uint     `json:"index"`
	Location    Location `json:"location"`
	Format      string   `json:"format"`
	Hash        string   `json:"hash"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Text        string   `json:"text"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	DuplicateOf *uint    `json:"duplicate_of,omitempty"`
}

type progressMessage struct {
	Type      string  `json:"type"`
	Completed uint    `json:"completed"`
	Total     uint    `json:"total"`
	Percent   float64 `json:"percent"`
}

type completedMessage struct {
	Type    string   `json:"type"`
	Results []Result `json:"results"`
}

type failedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Encode returns the JSON encoding of ev.
func Encode(ev domain.ProgressEvent) ([]byte, error) {
	switch e := ev.(type) {
	case domain.InProgress:
		return json.Marshal(progressMessage{
			Type:      TypeProgress,
			Completed: e.Completed,
			Total:     e.Total,
			Percent:   math.Round(e.Percent()*10) / 10,
		})
	case domain.Completed:
		results := make([]Result, len(e.Results))
		for i, r := range e.Results {
			results[i] = ToResult(r)
		}
		return json.Marshal(completedMessage{Type: TypeCompleted, Results: results})
	case domain.Failed:
		return json.Marshal(failedMessage{Type: TypeFailed, Reason: e.Reason})
	default:
		return nil, fmt.Errorf("encode event: unknown event type %T", ev)
	}
}

// EncodeSSE frames ev as a server-sent event.
func EncodeSSE(ev domain.ProgressEvent) ([]byte, error) {
	body, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+8)
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out, nil
}

// ToResult converts a domain result to its wire form.
func ToResult(r domain.Result) Result {
	loc := r.Record.Location
	return Result{
		Index: r.Record.SequenceIndex,
		Location: Location{
			Page:     loc.Page,
			Part:     loc.Part,
			RelID:    loc.RelID,
			Position: loc.Position,
		},
		Format:      r.Record.Format,
		Hash:        r.Record.Hash.String(),
		Width:       r.Record.Width,
		Height:      r.Record.Height,
		Text:        r.Outcome.Text,
		Status:      string(r.Outcome.Status),
		Reason:      r.Outcome.Reason,
		DuplicateOf: r.Outcome.DuplicateOf,
	}
}

// Decode parses one encoded event. Records in a decoded Completed event carry
// no image bytes.
func Decode(data []byte) (domain.ProgressEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch envelope.Type {
	case TypeProgress:
		var m progressMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode progress event: %w", err)
		}
		return domain.InProgress{Completed: m.Completed, Total: m.Total}, nil

	case TypeCompleted:
		var m completedMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode completed event: %w", err)
		}
		results := make([]domain.Result, len(m.Results))
		for i, r := range m.Results {
			res, err := fromResult(r)
			if err != nil {
				return nil, fmt.Errorf("decode result %d: %w", i, err)
			}
			results[i] = res
		}
		return domain.Completed{Results: results}, nil

	case TypeFailed:
		var m failedMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode failed event: %w", err)
		}
		return domain.Failed{Reason: m.Reason}, nil

	default:
		return nil, fmt.Errorf("decode event: unknown type %q", envelope.Type)
	}
}

func fromResult(r Result) (domain.Result, error) {
	var hash domain.ContentHash
	raw, err := hex.DecodeString(r.Hash)
	if err != nil || len(raw) != len(hash) {
		return domain.Result{}, fmt.Errorf("invalid hash %q", r.Hash)
	}
	copy(hash[:], raw)

	return domain.Result{
		Record: domain.ImageRecord{
			SequenceIndex: r.Index,
			Location: domain.SourceLocation{
				Page:     r.Location.Page,
				Part:     r.Location.Part,
				RelID:    r.Location.RelID,
				Position: r.Location.Position,
			},
			Format: r.Format,
			Hash:   hash,
			Width:  r.Width,
			Height: r.Height,
		},
		Outcome: domain.AnnotationOutcome{
			SequenceIndex: r.Index,
			Text:          r.Text,
			Status:        domain.Status(r.Status),
			Reason:        r.Reason,
			DuplicateOf:   r.DuplicateOf,
		},
	}, nil
}
