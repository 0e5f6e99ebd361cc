package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{
			name: "with cause",
			err:  MalformedDocumentError("cannot open pdf", errors.New("bad xref")),
			want: "[MalformedDocument] cannot open pdf: bad xref",
		},
		{
			name: "without cause",
			err:  BlockedError("SAFETY"),
			want: "[AnnotationBlocked] SAFETY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsType(t *testing.T) {
	cause := TransientError("HTTP 503", nil)
	exhausted := PermanentError("caption failed after 3 attempts", cause)
	wrapped := fmt.Errorf("describe image 4: %w", exhausted)

	assert.True(t, IsType(wrapped, ErrorTypeFailed))
	assert.True(t, IsType(wrapped, ErrorTypeTransient))
	assert.False(t, IsType(wrapped, ErrorTypeBlocked))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeFailed))
	assert.False(t, IsType(nil, ErrorTypeFailed))

	typ, ok := TypeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeFailed, typ)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, "SAFETY", ReasonOf(BlockedError("SAFETY")))
	assert.Equal(t, "caption failed after 3 attempts: [AnnotationTransient] HTTP 503",
		ReasonOf(PermanentError("caption failed after 3 attempts", TransientError("HTTP 503", nil))))
	assert.Equal(t, "boom", ReasonOf(errors.New("boom")))
}
