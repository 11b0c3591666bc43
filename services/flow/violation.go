package flow

import "fmt"

// Stage names the check that produced a violation.
type Stage string

const (
	StageSchema    Stage = "schema"
	StageGraph     Stage = "graph"
	StageType      Stage = "type"
	StageParameter Stage = "parameter"
	StageSemantic  Stage = "semantic"
	StageSecurity  Stage = "security"
)

// Severity grades a violation. Graph validation uses error and warning;
// security analysis uses critical and high.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// Blocking reports whether a violation of this severity rejects the input.
func (s Severity) Blocking() bool {
	return s != SeverityWarning
}

// Location points at the offending node, edge or source position.
// All fields are optional.
type Location struct {
	NodeID string `json:"node_id,omitempty"`
	Edge   string `json:"edge,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Violation is a single finding from validation or security analysis.
type Violation struct {
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Location Location `json:"location"`
	Message  string   `json:"message"`
}

func (v Violation) String() string {
	where := v.Location.NodeID
	if where == "" {
		where = v.Location.Edge
	}
	if v.Location.Line > 0 {
		where = fmt.Sprintf("%d:%d", v.Location.Line, v.Location.Column)
	}
	if where == "" {
		return fmt.Sprintf("[%s/%s] %s", v.Stage, v.Severity, v.Message)
	}
	return fmt.Sprintf("[%s/%s] %s: %s", v.Stage, v.Severity, where, v.Message)
}

// ValidationResult is produced fresh by every validation call.
type ValidationResult struct {
	IsValid  bool        `json:"is_valid"`
	Errors   []Violation `json:"errors"`
	Warnings []Violation `json:"warnings"`
}

func (r *ValidationResult) add(v Violation) {
	if v.Severity.Blocking() {
		r.Errors = append(r.Errors, v)
		return
	}
	r.Warnings = append(r.Warnings, v)
}

func (r *ValidationResult) addAll(vs []Violation) {
	for _, v := range vs {
		r.add(v)
	}
}

// HasStage reports whether any error or warning came from the given stage.
func (r ValidationResult) HasStage(stage Stage) bool {
	for _, v := range r.Errors {
		if v.Stage == stage {
			return true
		}
	}
	for _, v := range r.Warnings {
		if v.Stage == stage {
			return true
		}
	}
	return false
}
