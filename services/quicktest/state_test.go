package quicktest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"logicflow/pkg/apperr"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  error
	}{
		{StatusPending, StatusRunning, nil},
		{StatusPending, StatusCancelled, nil},
		{StatusPending, StatusFailed, nil},
		{StatusPending, StatusCompleted, ErrInvalidTransition},
		{StatusRunning, StatusCompleted, nil},
		{StatusRunning, StatusFailed, nil},
		{StatusRunning, StatusCancelled, nil},
		{StatusRunning, StatusPending, ErrInvalidTransition},
		{StatusCompleted, StatusFailed, ErrTerminalState},
		{StatusCancelled, StatusCompleted, ErrTerminalState},
		{StatusFailed, StatusRunning, ErrTerminalState},
		{StatusCancelled, StatusCancelled, ErrTerminalState},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Transition(tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, apperr.ErrConflict))
			var te *TransitionError
			assert.True(t, errors.As(err, &te))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
