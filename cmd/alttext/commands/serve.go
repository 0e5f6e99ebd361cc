package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/spherical/alttext/internal/server"
	"github.com/spherical/alttext/pkg/alttext"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the alt-text pipeline over HTTP",
	Long: `Start an HTTP server that accepts documents on POST /v1/documents and
streams progress events back as server-sent events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	logger := newLogger(cfg, os.Stderr, false)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := alttext.NewClientWithConfig(cfg, alttext.WithLogger(logger), alttext.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer client.Close()

	router := server.NewRouter(logger, client, server.RouterConfig{
		ServiceName:    cfg.Observability.ServiceName,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Gatherer:       reg,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("backend", cfg.Caption.Backend).
		Str("rotation", cfg.Rotation.Driver).
		Msg("Starting alttext server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg.Server, router, logger).Run(ctx)
}
