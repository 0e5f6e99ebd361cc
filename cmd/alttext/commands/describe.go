package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/alttext/cmd/alttext/ui"
	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/events"
	"github.com/spherical/alttext/pkg/alttext"
)

var (
	describeKind   string
	describeFormat string
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Describe every image in a document",
	Long: `Extract the images of a PDF or DOCX document and generate alternative text
for each of them. Output is a table, the final results as JSON, or the raw
event stream as newline-delimited JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func init() {
	describeCmd.Flags().StringVarP(&describeKind, "kind", "k", "", "document kind (pdf or docx); detected when empty")
	describeCmd.Flags().StringVarP(&describeFormat, "format", "f", "table", "output format: table, json or events")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	switch describeFormat {
	case "table", "json", "events":
	default:
		return fmt.Errorf("unknown format %q (want table, json or events)", describeFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, os.Stderr, describeFormat != "events")

	doc, err := openDocument(args[0], describeKind)
	if err != nil {
		return err
	}

	client, err := alttext.NewClientWithConfig(cfg, alttext.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := client.Process(ctx, doc)
	if err != nil {
		return err
	}

	var terminal domain.ProgressEvent
	if describeFormat == "events" {
		terminal, err = streamEvents(os.Stdout, stream)
	} else {
		terminal = watchProgress(doc.Name, stream)
	}
	if err != nil {
		return err
	}

	switch t := terminal.(type) {
	case domain.Completed:
		return render(t)
	case domain.Failed:
		if describeFormat != "events" {
			ui.Error("%s", t.Reason)
		}
		return errors.New("document could not be processed")
	default:
		ui.Warning("Cancelled before the document finished")
		return errors.New("cancelled")
	}
}

func openDocument(path, kind string) (domain.Document, error) {
	if kind == "" {
		return alttext.OpenFile(path)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return domain.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, domain.IOError(fmt.Sprintf("read %s", path), err)
	}
	return domain.Document{Kind: k, Bytes: data, Name: filepath.Base(path)}, nil
}

// streamEvents writes every event as NDJSON and returns the terminal one.
func streamEvents(w io.Writer, stream <-chan domain.ProgressEvent) (domain.ProgressEvent, error) {
	out := events.NewWriter(w, events.FramingNDJSON)
	var terminal domain.ProgressEvent
	for ev := range stream {
		if err := out.Write(ev); err != nil {
			return nil, fmt.Errorf("write event: %w", err)
		}
		if domain.IsTerminal(ev) {
			terminal = ev
		}
	}
	return terminal, nil
}

// watchProgress shows a spinner while images are extracted and a progress bar
// while they are described. It returns the terminal event, if any.
func watchProgress(name string, stream <-chan domain.ProgressEvent) domain.ProgressEvent {
	spin := ui.NewSpinner(fmt.Sprintf("Extracting images from %s...", name))
	spin.Start()
	spinning := true
	var bar *ui.ProgressBar

	var terminal domain.ProgressEvent
	for ev := range stream {
		if spinning {
			spin.Stop()
			spinning = false
		}
		switch e := ev.(type) {
		case domain.InProgress:
			if bar == nil {
				bar = ui.NewProgressBar(int64(e.Total), "Describing")
			}
			bar.Set(int64(e.Completed))
		default:
			terminal = ev
		}
	}
	if spinning {
		spin.Stop()
	}
	if bar != nil {
		bar.Finish()
	}
	return terminal
}

func render(done domain.Completed) error {
	if describeFormat == "events" {
		return nil
	}

	if describeFormat == "json" {
		results := make([]events.Result, len(done.Results))
		for i, r := range done.Results {
			results[i] = events.ToResult(r)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(done.Results) == 0 {
		ui.Info("No images found")
		return nil
	}

	counts := map[domain.Status]int{}
	rows := make([][]string, 0, len(done.Results))
	for _, r := range done.Results {
		counts[r.Outcome.Status]++
		text := r.Outcome.Text
		if r.Outcome.Status != domain.StatusOK {
			text = r.Outcome.Reason
		}
		if r.Outcome.DuplicateOf != nil {
			text = fmt.Sprintf("(same as #%d) %s", *r.Outcome.DuplicateOf, text)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(r.Record.SequenceIndex), 10),
			r.Record.Location.String(),
			ui.Status(string(r.Outcome.Status)),
			ui.Truncate(text, 100),
		})
	}
	ui.Table([]string{"#", "LOCATION", "STATUS", "TEXT"}, rows)

	ui.Success("%d images: %d described, %d blocked, %d failed",
		len(done.Results), counts[domain.StatusOK], counts[domain.StatusBlocked], counts[domain.StatusFailed])
	return nil
}
