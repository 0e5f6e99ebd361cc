// Package alttext generates alternative text for the images embedded in PDF
// and DOCX documents.
//
// A Client extracts every embedded image, skips repeated images, asks a
// vision model for a caption of each distinct one and streams progress while
// it works:
//
//	client, err := alttext.NewClient()
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	doc, err := alttext.OpenFile("paper.pdf")
//	if err != nil {
//		return err
//	}
//	done, err := client.Describe(ctx, doc)
package alttext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spherical/alttext/internal/caption"
	"github.com/spherical/alttext/internal/config"
	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/metrics"
	"github.com/spherical/alttext/internal/observability"
	"github.com/spherical/alttext/internal/pipeline"
	"github.com/spherical/alttext/internal/source"
)

// Re-export domain types for the public API
type (
	Document          = domain.Document
	DocumentKind      = domain.DocumentKind
	ProgressEvent     = domain.ProgressEvent
	InProgress        = domain.InProgress
	Completed         = domain.Completed
	Failed            = domain.Failed
	Result            = domain.Result
	ImageRecord       = domain.ImageRecord
	SourceLocation    = domain.SourceLocation
	AnnotationOutcome = domain.AnnotationOutcome
	Status            = domain.Status
	Config            = config.Config
)

const (
	KindPDF  = domain.KindPDF
	KindDOCX = domain.KindDOCX

	StatusOK      = domain.StatusOK
	StatusBlocked = domain.StatusBlocked
	StatusFailed  = domain.StatusFailed
)

// Client is the main entry point of the library. It is safe for concurrent
// use; concurrent runs share the credential ring.
type Client struct {
	cfg          *config.Config
	logger       *observability.Logger
	pool         *caption.Pool
	orchestrator *pipeline.Orchestrator
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger     *observability.Logger
	registerer prometheus.Registerer
	backend    caption.Backend
}

// WithLogger sets the logger. Clients log nothing by default.
func WithLogger(l *observability.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithRegisterer registers the client's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) { o.registerer = reg }
}

// WithBackend replaces the configured captioning backend.
func WithBackend(b caption.Backend) Option {
	return func(o *clientOptions) { o.backend = b }
}

// LoadConfig loads configuration from path, a .env file and the environment.
// An empty path uses defaults plus the environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// NewClient creates a client configured from the environment. ALTTEXT_CONFIG
// may name a YAML configuration file.
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := config.Load(os.Getenv("ALTTEXT_CONFIG"))
	if err != nil {
		return nil, domain.ConfigError("load configuration", err)
	}
	return NewClientWithConfig(cfg, opts...)
}

// NewClientWithConfig creates a client from cfg.
func NewClientWithConfig(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, domain.ConfigError("missing credentials", err)
	}

	o := clientOptions{logger: observability.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	var m *metrics.Metrics
	if o.registerer != nil {
		m = metrics.New(o.registerer)
	}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = caption.NewBackend(caption.BackendConfig{
			Name:            cfg.Caption.Backend,
			Model:           cfg.Caption.Model,
			BaseURL:         cfg.Caption.BaseURL,
			Temperature:     cfg.Caption.Temperature,
			TopP:            cfg.Caption.TopP,
			MaxOutputTokens: cfg.Caption.MaxOutputTokens,
			Timeout:         cfg.Caption.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	poolOpts := []caption.Option{
		caption.WithRetry(caption.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		caption.WithNormalize(caption.NormalizeConfig{
			MaxDimension: cfg.Normalize.MaxDimension,
			Quality:      cfg.Normalize.JPEGQuality,
		}),
		caption.WithPrompt(cfg.Caption.Prompt),
		caption.WithLogger(o.logger),
		caption.WithMetrics(m),
	}
	if cfg.Rotation.Driver == "redis" {
		cursor, err := caption.NewRedisCursor(caption.RedisCursorConfig{
			Addr:     cfg.Rotation.Redis.Addr,
			Password: cfg.Rotation.Redis.Password,
			DB:       cfg.Rotation.Redis.DB,
			Key:      cfg.Rotation.Redis.Key,
		})
		if err != nil {
			return nil, domain.ConfigError("connect rotation cursor", err)
		}
		poolOpts = append(poolOpts, caption.WithCursor(cursor))
	}

	pool, err := caption.NewPool(backend, caption.CredentialsFromKeys(cfg.Caption.Credentials), poolOpts...)
	if err != nil {
		return nil, err
	}

	registry := source.NewRegistry(o.logger, source.Options{MinDimension: cfg.Pipeline.MinImageDimension})

	orchestrator := pipeline.New(registry, pool, pipeline.Options{
		Concurrency: cfg.Workers(),
		EventBuffer: cfg.Pipeline.EventBuffer,
	}, o.logger, m)

	o.logger.Info().
		Str("backend", backend.Name()).
		Int("credentials", pool.Size()).
		Int("workers", cfg.Workers()).
		Str("rotation", cfg.Rotation.Driver).
		Msg("Client ready")

	return &Client{
		cfg:          cfg,
		logger:       o.logger,
		pool:         pool,
		orchestrator: orchestrator,
	}, nil
}

// OpenFile reads a document from disk and detects its kind.
func OpenFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, domain.IOError(fmt.Sprintf("read %s", path), err)
	}
	name := filepath.Base(path)
	kind, err := source.DetectKind(name, data)
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: kind, Bytes: data, Name: name}, nil
}

// Process starts a run over doc and returns its event stream. A document
// with no kind has it detected from its content and name.
func (c *Client) Process(ctx context.Context, doc Document) (<-chan ProgressEvent, error) {
	if doc.Kind == "" {
		kind, err := source.DetectKind(doc.Name, doc.Bytes)
		if err != nil {
			return nil, err
		}
		doc.Kind = kind
	}
	return c.orchestrator.Run(ctx, doc), nil
}

// Run implements the pipeline contract for transports that stream events.
func (c *Client) Run(ctx context.Context, doc Document) <-chan ProgressEvent {
	return c.orchestrator.Run(ctx, doc)
}

// Describe processes doc to completion and returns the final results. A run
// that fails returns an error carrying the failure reason.
func (c *Client) Describe(ctx context.Context, doc Document) (*Completed, error) {
	events, err := c.Process(ctx, doc)
	if err != nil {
		return nil, err
	}
	return pipeline.Collect(events)
}

// Config returns the client's configuration.
func (c *Client) Config() *Config {
	return c.cfg
}

// Close releases the client's resources.
func (c *Client) Close() error {
	return c.pool.Close()
}
