package codegen

import (
	"time"

	"logicflow/services/flow"
)

// Language is the only target language the compiler emits.
const Language = "python"

// GeneratorVersion is recorded in every GeneratedCode's metadata.
const GeneratorVersion = "1.0.0"

// GeneratedCode is one stored compilation of a strategy instance's logic flow.
// Records are immutable once stored.
type GeneratedCode struct {
	ID          string         `json:"id"`
	InstanceID  string         `json:"instance_id"`
	Code        string         `json:"code"`
	Language    string         `json:"language"`
	FormatTag   string         `json:"format_tag"`
	Imports     []string       `json:"imports"`
	EntrySymbol string         `json:"entry_symbol"`
	CodeHash    string         `json:"code_hash"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// GenerateRequest is the input to Generator.Generate.
type GenerateRequest struct {
	InstanceID      string          `json:"instance_id"`
	Flow            *flow.LogicFlow `json:"logic_flow"`
	Parameters      map[string]any  `json:"parameters"`
	IncludeComments bool            `json:"include_comments"`
}

// generateBody is the JSON body of POST /instances/{id}/code.
type generateBody struct {
	Flow            *flow.LogicFlow `json:"logic_flow"`
	Parameters      map[string]any  `json:"parameters"`
	IncludeComments *bool           `json:"include_comments"`
}

// CycleResponse is returned by the cycle check endpoint.
type CycleResponse struct {
	HasCycle bool     `json:"has_cycle"`
	Path     []string `json:"path"`
}
