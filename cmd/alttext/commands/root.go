package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/spherical/alttext/cmd/alttext/ui"
	"github.com/spherical/alttext/internal/config"
	"github.com/spherical/alttext/internal/observability"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "alttext",
	Short: "Generate alternative text for images embedded in PDF and DOCX documents",
	Long: `alttext extracts every image embedded in a PDF or DOCX document, skips
repeated images and asks a vision model to describe each distinct one.
Progress is reported while the document is processed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the logger for a command. Interactive commands keep the
// terminal for their own output and only log warnings unless --verbose.
func newLogger(cfg *config.Config, out io.Writer, interactive bool) *observability.Logger {
	level := cfg.Observability.LogLevel
	switch {
	case verbose:
		level = "debug"
	case interactive:
		level = "warn"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		Output:      out,
		ServiceName: cfg.Observability.ServiceName,
	})
}
