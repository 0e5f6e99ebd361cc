package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/alttext/internal/domain"
	"github.com/spherical/alttext/internal/events"
)

func TestStreamEventsWritesNDJSON(t *testing.T) {
	stream := make(chan domain.ProgressEvent, 3)
	stream <- domain.InProgress{Completed: 1, Total: 1}
	stream <- domain.Completed{Results: []domain.Result{}}
	close(stream)

	var buf bytes.Buffer
	terminal, err := streamEvents(&buf, stream)
	require.NoError(t, err)
	assert.Equal(t, domain.Completed{Results: []domain.Result{}}, terminal)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	first, err := events.Decode([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, domain.InProgress{Completed: 1, Total: 1}, first)
}

func TestStreamEventsWithoutTerminal(t *testing.T) {
	stream := make(chan domain.ProgressEvent)
	close(stream)

	terminal, err := streamEvents(&bytes.Buffer{}, stream)
	require.NoError(t, err)
	assert.Nil(t, terminal)
}

func TestOpenDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.bin")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o600))

	doc, err := openDocument(path, "")
	require.NoError(t, err)
	assert.Equal(t, domain.KindPDF, doc.Kind)

	doc, err = openDocument(path, "docx")
	require.NoError(t, err)
	assert.Equal(t, domain.KindDOCX, doc.Kind)
	assert.Equal(t, "scan.bin", doc.Name)

	_, err = openDocument(path, "odt")
	assert.True(t, domain.IsType(err, domain.ErrorTypeUnsupportedKind))

	_, err = openDocument(filepath.Join(dir, "missing.pdf"), "pdf")
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "alttext version "+Version+"\n", buf.String())
}
