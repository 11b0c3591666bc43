package codegen

import (
	"errors"
	"fmt"

	"logicflow/services/flow"
)

// ErrCodeGeneration indicates a candidate program was rejected and discarded.
var ErrCodeGeneration = errors.New("code generation error")

// CodeGenerationError reports why a candidate program was rejected.
// Wraps ErrCodeGeneration for errors.Is() compatibility.
type CodeGenerationError struct {
	Reason     string
	Violations []flow.Violation
	Err        error // underlying cause, if any
}

func (e *CodeGenerationError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrCodeGeneration.Error(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if n := len(e.Violations); n > 0 {
		msg += fmt.Sprintf(" (%d violations, first: %s)", n, e.Violations[0].String())
	}
	return msg
}

func (e *CodeGenerationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCodeGeneration, e.Err}
	}
	return []error{ErrCodeGeneration}
}
