package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/metrics"
	"github.com/spherical/alttext/internal/observability"
)

// Pool describes images through a Backend, rotating over an ordered ring of
// credentials. Every attempt takes the next credential in the ring, so load
// spreads evenly and a transient failure fails over to another key. A
// credential serves at most one request at a time.
type Pool struct {
	backend   Backend
	creds     []domain.Credential
	cursor    Cursor
	fallback  MemoryCursor
	retry     RetryConfig
	normalize NormalizeConfig
	prompt    string
	logger    *observability.Logger
	metrics   *metrics.Metrics
	wait      func(context.Context, time.Duration) error

	slots chan struct{}
	mu    sync.Mutex
	busy  []bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithCursor sets where the rotation cursor lives.
func WithCursor(c Cursor) Option {
	return func(p *Pool) { p.cursor = c }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(p *Pool) { p.retry = cfg }
}

// WithNormalize overrides image normalization.
func WithNormalize(cfg NormalizeConfig) Option {
	return func(p *Pool) { p.normalize = cfg }
}

// WithPrompt sets the instruction sent with every image.
func WithPrompt(prompt string) Option {
	return func(p *Pool) { p.prompt = prompt }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// CredentialsFromKeys names raw API keys key1..keyN in ring order.
func CredentialsFromKeys(keys []string) []domain.Credential {
	creds := make([]domain.Credential, len(keys))
	for i, k := range keys {
		creds[i] = domain.Credential{Name: fmt.Sprintf("key%d", i+1), Key: k}
	}
	return creds
}

// NewPool creates a pool over creds, which must not be empty.
func NewPool(backend Backend, creds []domain.Credential, opts ...Option) (*Pool, error) {
	if len(creds) == 0 {
		return nil, domain.ConfigError("caption pool needs at least one credential", nil)
	}

	p := &Pool{
		backend:   backend,
		creds:     append([]domain.Credential(nil), creds...),
		retry:     DefaultRetryConfig(),
		normalize: DefaultNormalizeConfig(),
		logger:    observability.Nop(),
		wait:      waitContext,
		slots:     make(chan struct{}, len(creds)),
		busy:      make([]bool, len(creds)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cursor == nil {
		p.cursor = &p.fallback
	}
	if p.retry.MaxAttempts < 1 {
		p.retry.MaxAttempts = 1
	}
	p.logger = p.logger.WithOperation("caption_pool")
	return p, nil
}

// Size returns the number of credentials in the ring.
func (p *Pool) Size() int {
	return len(p.creds)
}

// Close releases the cursor's resources.
func (p *Pool) Close() error {
	if c, ok := p.cursor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Describe implements domain.Describer. Blocked results are returned at once;
// transient failures are retried with exponential backoff up to
// MaxAttempts, after which an ErrorTypeFailed error wraps the last cause.
// Once ctx is done no new attempt starts, but a request already sent runs to
// completion.
func (p *Pool) Describe(ctx context.Context, image []byte) (string, error) {
	normalized, err := Normalize(image, p.normalize)
	if err != nil {
		return "", domain.PermanentError("cannot normalize image", err)
	}

	req := Request{Image: normalized, MIMEType: normalizedMIME, Prompt: p.prompt}

	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt-1, p.retry)
			p.logger.Warn().Err(lastErr).
				Int("attempt", attempt).
				Int("max_attempts", p.retry.MaxAttempts).
				Dur("backoff", backoff).
				Msg("Caption request failed, retrying")
			p.metrics.IncCaptionRetry()

			if err := p.wait(ctx, backoff); err != nil {
				return "", domain.PermanentError("caption abandoned", errors.Join(err, lastErr))
			}
		}
		if err := ctx.Err(); err != nil {
			return "", domain.PermanentError("caption abandoned", errors.Join(err, lastErr))
		}

		text, err := p.attempt(ctx, req)
		if err == nil {
			return text, nil
		}

		switch typ, _ := domain.TypeOf(err); typ {
		case domain.ErrorTypeBlocked, domain.ErrorTypeFailed:
			return "", err
		case domain.ErrorTypeTransient:
			lastErr = err
		default:
			return "", domain.PermanentError("caption request failed", err)
		}
	}

	return "", domain.PermanentError(fmt.Sprintf("caption failed after %d attempts", p.retry.MaxAttempts), lastErr)
}

// attempt sends one request on the next free credential.
func (p *Pool) attempt(ctx context.Context, req Request) (string, error) {
	idx, err := p.acquire(ctx)
	if err != nil {
		return "", domain.PermanentError("caption abandoned", err)
	}
	cred := p.creds[idx]

	start := time.Now()
	text, err := p.backend.Describe(context.WithoutCancel(ctx), cred, req)
	elapsed := time.Since(start)
	p.release(idx)

	if err != nil {
		typ, _ := domain.TypeOf(err)
		p.metrics.ObserveCaption(p.backend.Name(), outcomeLabel(typ), elapsed)
		p.logger.Debug().Err(err).Str("credential", cred.String()).Dur("elapsed", elapsed).Msg("Caption request failed")
		return "", err
	}

	text = cleanCaption(text)
	if text == "" {
		p.metrics.ObserveCaption(p.backend.Name(), "failed", elapsed)
		return "", domain.PermanentError("backend returned an empty caption", nil)
	}

	p.metrics.ObserveCaption(p.backend.Name(), "ok", elapsed)
	p.logger.Debug().Str("credential", cred.String()).Dur("elapsed", elapsed).Msg("Caption received")
	return text, nil
}

// acquire leases a credential, starting the search at the cursor position.
func (p *Pool) acquire(ctx context.Context) (int, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	start, err := p.cursor.Next(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Rotation cursor unavailable, using local cursor")
		start, _ = p.fallback.Next(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := uint64(len(p.creds))
	for k := uint64(0); k < n; k++ {
		idx := int((start + k) % n)
		if !p.busy[idx] {
			p.busy[idx] = true
			return idx, nil
		}
	}

	// the slot semaphore bounds leases to len(creds), so this is unreachable
	<-p.slots
	return -1, errors.New("no idle credential")
}

func (p *Pool) release(idx int) {
	p.mu.Lock()
	p.busy[idx] = false
	p.mu.Unlock()
	<-p.slots
}

func outcomeLabel(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeBlocked:
		return "blocked"
	case domain.ErrorTypeTransient:
		return "transient"
	default:
		return "failed"
	}
}

// cleanCaption strips markdown emphasis that models like to add.
func cleanCaption(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}
