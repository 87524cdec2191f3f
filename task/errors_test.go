package task

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDependencyError(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name    string
		err     *DependencyError
		msg     string
		matches error
		other   error
	}{
		{
			name:    "finished",
			err:     &DependencyError{Kind: DependencyFinished, Err: cause},
			msg:     "procedure: dependency finished with error: cause",
			matches: ErrDependencyFinished,
			other:   ErrDependencyCancelled,
		},
		{
			name:    "cancelled_without_reason",
			err:     &DependencyError{Kind: DependencyCancelled},
			msg:     "procedure: dependency cancelled",
			matches: ErrDependencyCancelled,
			other:   ErrDependencyFinished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.msg)
			assert.ErrorIs(t, tt.err, tt.matches)
			assert.NotErrorIs(t, tt.err, tt.other)

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.matches)
		})
	}

	assert.ErrorIs(t, &DependencyError{Kind: DependencyFinished, Err: cause}, cause)
	assert.Equal(t, "finished", DependencyFinished.String())
	assert.Equal(t, "cancelled", DependencyCancelled.String())
	assert.Equal(t, "unknown", DependencyKind(0).String())
}

func TestCancelledError(t *testing.T) {
	assert.EqualError(t, &CancelledError{}, "procedure: task cancelled")

	reason := errors.New("shutdown")
	err := &CancelledError{Reason: reason}
	assert.EqualError(t, err, "procedure: task cancelled: shutdown")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, reason)
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{After: 250 * time.Millisecond}
	assert.EqualError(t, err, "procedure: task timed out after 250ms")
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.True(t, err.Timeout())

	var te interface{ Timeout() bool }
	assert.ErrorAs(t, fmt.Errorf("wrap: %w", err), &te)
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Task: "fetch", Value: "nil map"}
	assert.EqualError(t, err, "procedure: panic in task fetch: nil map")
}
