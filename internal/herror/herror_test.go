package herror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *Error
		expected string
	}{
		{
			name:     "plain message",
			build:    func() *Error { return New(Conflict, "refusing to overwrite directory") },
			expected: "refusing to overwrite directory",
		},
		{
			name: "wrapped cause",
			build: func() *Error {
				return Wrap(IO, errors.New("permission denied"), "failed to write plaintext")
			},
			expected: "failed to write plaintext: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.build().Error())
		})
	}
}

func TestError_KindAndIs(t *testing.T) {
	err := New(Busy, "lock held by another process")

	assert.Equal(t, Busy, err.Kind())
	assert.True(t, Is(err, Busy))
	assert.False(t, Is(err, Conflict))
	assert.False(t, Is(errors.New("plain"), Busy))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Backend, cause, "git exited non-zero")

	assert.ErrorIs(t, err, cause)
}

func TestError_WithHelp(t *testing.T) {
	err := New(Configuration, "no recipients configured").WithHelp("add at least one recipient")

	assert.Equal(t, "add at least one recipient", err.Help())
}
