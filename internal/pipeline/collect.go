package pipeline

import (
	"errors"
	"fmt"

	"github.com/spherical/alttext/internal/domain"
)

// ErrNoTerminalEvent is returned by Collect when a stream closes without a
// Completed or Failed event, which happens when the run was cancelled.
var ErrNoTerminalEvent = errors.New("event stream ended without a terminal event")

// Collect drains events and returns the terminal Completed event. A Failed
// event becomes an error carrying its reason.
func Collect(events <-chan domain.ProgressEvent) (*domain.Completed, error) {
	var (
		completed *domain.Completed
		err       error
	)
	for ev := range events {
		switch e := ev.(type) {
		case domain.Completed:
			completed = &e
		case domain.Failed:
			err = fmt.Errorf("pipeline failed: %s", e.Reason)
		}
	}

	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, ErrNoTerminalEvent
	}
	return completed, nil
}
