package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a  line\nbreak", 20, "a line break"},
		{"abcdefghij", 5, "abcd…"},
		{"ünïcödé", 4, "ünï…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
	}
}

func TestTableAndStatus(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })

	Table([]string{"#", "STATUS"}, [][]string{{"0", Status("ok")}, {"1", Status("blocked")}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], "ok")
	assert.Contains(t, lines[3], "blocked")
}
