package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"logicflow/services/flow"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", &ResourceNotFoundError{Resource: "instance", ID: "x"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &ResourceNotFoundError{Resource: "quick test", ID: "y"}), http.StatusNotFound},
		{"forbidden", &AuthorizationError{Resource: "instance", ID: "x", UserID: "u"}, http.StatusForbidden},
		{"invalid", Invalid("capital must be positive"), http.StatusBadRequest},
		{"validation", &flow.ValidationError{}, http.StatusUnprocessableEntity},
		{"graph", &flow.GraphError{Kind: flow.GraphErrorCycle}, http.StatusUnprocessableEntity},
		{"conflict", fmt.Errorf("cancel: %w", ErrConflict), http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `instance "abc" not found`, (&ResourceNotFoundError{Resource: "instance", ID: "abc"}).Error())
	assert.Equal(t, `user "bob" may not access quick test "t1"`,
		(&AuthorizationError{Resource: "quick test", ID: "t1", UserID: "bob"}).Error())
	assert.Equal(t, "invalid request: bad date", Invalid("bad date").Error())
}
