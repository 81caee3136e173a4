package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("bad schedule"), "check the Coordinates element")
	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "check the Coordinates element", hints[0])
}

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found direct", ErrNotFound, IsNotFoundError, true},
		{"not found wrapped", NewNotFoundError("job %q", "M31"), IsNotFoundError, true},
		{"not found via WrapNotFound", WrapNotFound(New("no row"), "history"), IsNotFoundError, true},
		{"nil is not found", nil, IsNotFoundError, false},
		{"invalid request", NewInvalidRequestError("priority %d", 0), IsInvalidRequestError, true},
		{"unavailable", NewUnavailableError("mount"), IsServiceUnavailableError, true},
		{"unavailable wrapped twice", Wrap(fmt.Errorf("rpc: %w", NewUnavailableError("dome")), "park"), IsServiceUnavailableError, true},
		{"other error", New("boom"), IsServiceUnavailableError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestUnavailableMessageNamesService(t *testing.T) {
	err := NewUnavailableError("focuser")
	assert.Contains(t, err.Error(), "focuser")
	assert.Contains(t, err.Error(), "service unavailable")
}
