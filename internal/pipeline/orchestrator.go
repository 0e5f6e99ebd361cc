// Package pipeline drives a document through extraction, deduplication and
// annotation, reporting progress as a stream of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/alttext/internal/dedupe"
	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/metrics"
	"github.com/spherical/alttext/internal/observability"
)

// State is the phase of a run.
type State int

const (
	StateExtracting State = iota
	StateAnnotating
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateExtracting:
		return "extracting"
	case StateAnnotating:
		return "annotating"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SourceProvider resolves the image source for a document kind.
type SourceProvider interface {
	Get(kind domain.DocumentKind) (domain.ImageSource, error)
}

// Options tune a run.
type Options struct {
	// Concurrency is the number of images described at once. Values below 1
	// mean one, which gives strictly sequential behaviour.
	Concurrency int
	// EventBuffer is the capacity of the event channel.
	EventBuffer int
}

// Orchestrator runs documents through the pipeline. It holds no per-run
// state and may serve many runs at once.
type Orchestrator struct {
	sources   SourceProvider
	describer domain.Describer
	opts      Options
	logger    *observability.Logger
	metrics   *metrics.Metrics
}

// New creates an Orchestrator. logger and m may be nil.
func New(sources SourceProvider, describer domain.Describer, opts Options, logger *observability.Logger, m *metrics.Metrics) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.EventBuffer < 0 {
		opts.EventBuffer = 0
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Orchestrator{
		sources:   sources,
		describer: describer,
		opts:      opts,
		logger:    logger.WithOperation("pipeline"),
		metrics:   m,
	}
}

// Run starts a run and returns its event stream: one InProgress per image in
// sequence order, then exactly one Completed or Failed, then the channel is
// closed. Cancelling ctx stops new caption requests and ends the stream
// without a terminal event once in-flight requests have returned. Callers
// that stop reading must cancel ctx.
func (o *Orchestrator) Run(ctx context.Context, doc domain.Document) <-chan domain.ProgressEvent {
	out := make(chan domain.ProgressEvent, o.opts.EventBuffer)
	r := &run{
		o:      o,
		id:     uuid.NewString(),
		doc:    doc,
		out:    out,
		start:  time.Now(),
		logger: o.logger,
	}
	r.logger = o.logger.WithRun(r.id)

	go func() {
		defer close(out)
		r.execute(ctx)
	}()
	return out
}

type run struct {
	o      *Orchestrator
	id     string
	doc    domain.Document
	out    chan<- domain.ProgressEvent
	start  time.Time
	state  State
	logger *observability.Logger
}

func (r *run) execute(ctx context.Context) {
	r.logger.Info().Str("kind", string(r.doc.Kind)).Str("document", r.doc.Name).
		Int("bytes", len(r.doc.Bytes)).Msg("Run started")

	r.transition(StateExtracting)
	records, err := r.extract(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.abandon()
			return
		}
		r.fail(ctx, err)
		return
	}

	r.transition(StateAnnotating)
	outcomes, ok := r.annotate(ctx, records)
	if !ok {
		r.abandon()
		return
	}

	r.transition(StateFinalizing)
	if ctx.Err() != nil {
		r.abandon()
		return
	}
	results := make([]domain.Result, len(records))
	for i, rec := range records {
		results[i] = domain.Result{Record: rec, Outcome: outcomes[i]}
	}

	r.transition(StateCompleted)
	r.o.metrics.ObserveRun("completed", time.Since(r.start))
	r.logger.Info().Int("images", len(results)).Dur("elapsed", time.Since(r.start)).Msg("Run completed")
	r.emit(ctx, domain.Completed{Results: results})
}

// extract pulls the whole image sequence. Sequence indexes are renumbered
// so they are contiguous whatever the source does.
func (r *run) extract(ctx context.Context) ([]domain.ImageRecord, error) {
	src, err := r.o.sources.Get(r.doc.Kind)
	if err != nil {
		return nil, err
	}

	var records []domain.ImageRecord
	for rec, err := range src.Extract(ctx, r.doc) {
		if err != nil {
			return nil, err
		}
		rec.SequenceIndex = uint(len(records))
		records = append(records, rec)
	}

	r.logger.Info().Int("images", len(records)).Msg("Extraction finished")
	return records, nil
}

type slot struct {
	done    chan struct{}
	outcome domain.AnnotationOutcome
}

// annotate describes every distinct image and reports progress in sequence
// order. It returns false if ctx ended first.
func (r *run) annotate(ctx context.Context, records []domain.ImageRecord) ([]domain.AnnotationOutcome, bool) {
	total := uint(len(records))
	if total == 0 {
		return nil, true
	}

	index := dedupe.NewIndex()
	slots := make([]*slot, total)
	firstOf := make([]uint, total)
	var jobs []uint
	for i, rec := range records {
		if index.ShouldAnnotate(rec) {
			slots[i] = &slot{done: make(chan struct{})}
			firstOf[i] = uint(i)
			jobs = append(jobs, uint(i))
			continue
		}
		first, _ := index.FirstOccurrence(rec.Hash)
		firstOf[i] = first
	}
	r.logger.Debug().Uint("total", total).Int("distinct", len(jobs)).Msg("Deduplicated images")

	jobCh := make(chan uint)
	var wg sync.WaitGroup
	workers := min(r.o.opts.Concurrency, len(jobs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				slots[i].outcome = r.describe(ctx, records[i])
				close(slots[i].done)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, i := range jobs {
			select {
			case jobCh <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	outcomes := make([]domain.AnnotationOutcome, total)
	for i := uint(0); i < total; i++ {
		if ctx.Err() != nil {
			wg.Wait()
			return nil, false
		}
		s := slots[firstOf[i]]
		select {
		case <-s.done:
		case <-ctx.Done():
			wg.Wait()
			return nil, false
		}

		if firstOf[i] == i {
			outcomes[i] = s.outcome
			r.o.metrics.IncImage("annotated", string(s.outcome.Status))
		} else {
			outcomes[i] = s.outcome.CopyFor(i)
			r.o.metrics.IncImage("duplicate", string(s.outcome.Status))
		}

		if !r.emit(ctx, domain.InProgress{Completed: i + 1, Total: total}) {
			wg.Wait()
			return nil, false
		}
	}

	wg.Wait()
	return outcomes, true
}

// describe maps a caption call to an outcome. Image-level failures are data,
// never run failures.
func (r *run) describe(ctx context.Context, rec domain.ImageRecord) domain.AnnotationOutcome {
	idx := rec.SequenceIndex
	if err := ctx.Err(); err != nil {
		return domain.FailedOutcome(idx, err.Error())
	}

	start := time.Now()
	text, err := r.o.describer.Describe(ctx, rec.Bytes)
	if err == nil {
		r.logger.Debug().Uint("index", idx).Str("location", rec.Location.String()).
			Dur("elapsed", time.Since(start)).Msg("Image described")
		return domain.Described(idx, text)
	}

	reason := domain.ReasonOf(err)
	if typ, _ := domain.TypeOf(err); typ == domain.ErrorTypeBlocked {
		r.logger.Warn().Uint("index", idx).Str("location", rec.Location.String()).
			Str("reason", reason).Msg("Caption blocked by content policy")
		return domain.Blocked(idx, reason)
	}

	r.logger.Warn().Err(err).Uint("index", idx).Str("location", rec.Location.String()).Msg("Caption failed")
	return domain.FailedOutcome(idx, reason)
}

func (r *run) fail(ctx context.Context, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.MalformedDocumentError("extraction failed", err)
	}

	r.transition(StateFailed)
	r.o.metrics.ObserveRun("failed", time.Since(r.start))
	r.logger.Error().Err(de).Msg("Run failed")
	r.emit(ctx, domain.Failed{Reason: de.Error()})
}

func (r *run) abandon() {
	r.o.metrics.ObserveRun("cancelled", time.Since(r.start))
	r.logger.Info().Str("state", r.state.String()).Msg("Run cancelled")
}

func (r *run) transition(s State) {
	r.logger.Debug().Str("from", r.state.String()).Str("to", s.String()).Msg("Run state changed")
	r.state = s
}

// emit sends ev unless ctx ends first.
func (r *run) emit(ctx context.Context, ev domain.ProgressEvent) bool {
	select {
	case r.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
