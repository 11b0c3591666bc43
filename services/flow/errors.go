package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	// ErrValidation indicates a flow failed schema, graph, type, parameter
	// or semantic validation.
	ErrValidation = errors.New("validation error")

	// ErrGraph indicates a graph invariant was broken where validation
	// should already have caught it.
	ErrGraph = errors.New("graph error")

	// ErrCatalog indicates the node catalog could not be loaded.
	ErrCatalog = errors.New("catalog error")
)

// ValidationError carries the full result of a failed validation.
// Wraps ErrValidation for errors.Is() compatibility.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Result.Errors) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, v := range e.Result.Errors {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// GraphErrorKind classifies a GraphError.
type GraphErrorKind string

const (
	GraphErrorCycle       GraphErrorKind = "cycle"
	GraphErrorUnknownNode GraphErrorKind = "unknown_node"
	GraphErrorDuplicate   GraphErrorKind = "duplicate_node"
)

// GraphError reports a structural failure found outside validation.
// Wraps ErrGraph for errors.Is() compatibility.
type GraphError struct {
	Kind  GraphErrorKind
	Nodes []string // nodes involved, if known
	Msg   string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", ErrGraph.Error(), e.Kind)
	}
	return fmt.Sprintf("%s: %s", ErrGraph.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return ErrGraph }
