package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, KindPDF, k)

	k, err = ParseKind("docx")
	require.NoError(t, err)
	assert.Equal(t, KindDOCX, k)

	_, err = ParseKind("pptx")
	assert.True(t, IsType(err, ErrorTypeUnsupportedKind))
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("figure"))
	b := HashBytes([]byte("figure"))
	c := HashBytes([]byte("figure2"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// md5("") is a well-known constant
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashBytes(nil).String())
}

func TestNewImageRecordComputesHash(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff}
	rec := NewImageRecord(3, SourceLocation{Page: 2, Position: 1}, data, "jpeg")

	assert.Equal(t, uint(3), rec.SequenceIndex)
	assert.Equal(t, HashBytes(data), rec.Hash)
	assert.Equal(t, "page 2, image 1", rec.Location.String())
}

func TestSourceLocationString(t *testing.T) {
	assert.Equal(t, "word/media/image1.png (rId7)",
		SourceLocation{Part: "word/media/image1.png", RelID: "rId7", Position: 1}.String())
	assert.Equal(t, "word/media/image1.png", SourceLocation{Part: "word/media/image1.png"}.String())
}

func TestOutcomeCopyFor(t *testing.T) {
	first := Described(0, "a bar chart")
	dup := first.CopyFor(2)

	assert.Equal(t, uint(2), dup.SequenceIndex)
	assert.Equal(t, first.Text, dup.Text)
	assert.Equal(t, first.Status, dup.Status)
	require.NotNil(t, dup.DuplicateOf)
	assert.Equal(t, uint(0), *dup.DuplicateOf)

	// copying a copy still points at the first occurrence
	again := dup.CopyFor(5)
	assert.Equal(t, uint(0), *again.DuplicateOf)
	assert.Nil(t, first.DuplicateOf)
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Described(1, "a map")
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, "a map", ok.Text)

	blocked := Blocked(2, "safety")
	assert.Equal(t, StatusBlocked, blocked.Status)
	assert.Equal(t, "safety", blocked.Reason)

	failed := FailedOutcome(3, "all credentials exhausted")
	assert.Equal(t, uint(3), failed.SequenceIndex)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "all credentials exhausted", failed.Reason)
	assert.Empty(t, failed.Text)

	// the terminal event keeps the Failed name
	var ev ProgressEvent = Failed{Reason: failed.Reason}
	assert.True(t, IsTerminal(ev))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(InProgress{Completed: 1, Total: 2}))
	assert.True(t, IsTerminal(Completed{}))
	assert.True(t, IsTerminal(Failed{Reason: "x"}))
}

func TestInProgressPercent(t *testing.T) {
	assert.InDelta(t, 50.0, InProgress{Completed: 1, Total: 2}.Percent(), 0.001)
	assert.InDelta(t, 100.0, InProgress{}.Percent(), 0.001)
}

func TestCredentialStringRedactsKey(t *testing.T) {
	c := Credential{Name: "GEMINI_API_KEY1", Key: "AIzaSyExample1234"}
	assert.Equal(t, "GEMINI_API_KEY1:****1234", c.String())
	assert.NotContains(t, c.String(), "AIzaSy")
}
