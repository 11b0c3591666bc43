package flow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasMessage(vs []Violation, substr string) bool {
	for _, v := range vs {
		if strings.Contains(v.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidate_SMAChain(t *testing.T) {
	v := NewValidator(testCatalog(t))

	result := v.Validate(smaFlow())

	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.True(t, hasMessage(result.Warnings, "no SELL signal"))
	assert.False(t, hasMessage(result.Warnings, "no BUY signal"))
}

func TestValidate_FullFlow(t *testing.T) {
	v := NewValidator(testCatalog(t))

	result := v.Validate(fullFlow())

	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_EmptyFlow(t *testing.T) {
	v := NewValidator(testCatalog(t))

	for _, f := range []*LogicFlow{nil, {}} {
		result := v.Validate(f)
		assert.False(t, result.IsValid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, StageSchema, result.Errors[0].Stage)
	}
}

func TestValidate_ParameterViolations(t *testing.T) {
	tests := []struct {
		name    string
		node    int
		params  map[string]any
		wantErr string
	}{
		{"period below range", 0, map[string]any{"indicator": "SMA", "period": 0.0}, "at least 1"},
		{"period above range", 0, map[string]any{"indicator": "SMA", "period": 501.0}, "at most 500"},
		{"period not integer", 0, map[string]any{"indicator": "SMA", "period": 2.5}, "integer"},
		{"period wrong type", 0, map[string]any{"indicator": "SMA", "period": "20"}, "must be a int"},
		{"unknown factor", 0, map[string]any{"indicator": "SUPERTREND"}, "must be one of"},
		{"missing indicator", 0, map[string]any{"period": 20.0}, "missing required parameter \"indicator\""},
		{"injected source", 0, map[string]any{"indicator": "SMA", "source": "close; import os"}, "must be one of"},
		{"unknown operator", 1, map[string]any{"operator": "approx", "left": "close"}, "must be one of"},
		{"bad action", 2, map[string]any{"action": "HOLD"}, "must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(testCatalog(t))
			f := smaFlow()
			f.Nodes[tt.node].Parameters = tt.params

			result := v.Validate(f)

			assert.False(t, result.IsValid)
			assert.True(t, result.HasStage(StageParameter))
			assert.True(t, hasMessage(result.Errors, tt.wantErr), "errors: %v", result.Errors)
			assert.Equal(t, f.Nodes[tt.node].ID, result.Errors[0].Location.NodeID)
		})
	}
}

func TestValidate_UnknownParameterIsWarning(t *testing.T) {
	v := NewValidator(testCatalog(t))
	f := smaFlow()
	f.Nodes[0].Parameters["colour"] = "blue"

	result := v.Validate(f)

	assert.True(t, result.IsValid)
	assert.True(t, hasMessage(result.Warnings, `unknown parameter "colour"`))
}

func TestValidate_UnknownNodeType(t *testing.T) {
	v := NewValidator(testCatalog(t))
	f := smaFlow()
	f.Nodes[1].Type = "webhook"

	result := v.Validate(f)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StageSchema, result.Errors[0].Stage)
}

func TestValidate_StopsAfterFailingStage(t *testing.T) {
	v := NewValidator(testCatalog(t))
	f := smaFlow()
	f.Nodes[0].Parameters["period"] = -5.0
	f.Edges = append(f.Edges, Edge{FromNodeID: "C", ToNodeID: "ghost"})

	result := v.Validate(f)

	assert.False(t, result.IsValid)
	assert.True(t, result.HasStage(StageParameter))
	assert.False(t, result.HasStage(StageGraph), "graph stage must not run after a schema failure")
}

func TestValidate_Structure(t *testing.T) {
	t.Run("dangling edge", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Edges = append(f.Edges, Edge{FromNodeID: "C", ToNodeID: "ghost"})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.Equal(t, StageGraph, result.Errors[0].Stage)
		assert.Equal(t, "C->ghost", result.Errors[0].Location.Edge)
	})

	t.Run("duplicate id", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "A", Type: Signal, Parameters: map[string]any{"action": "SELL"}})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.True(t, hasMessage(result.Errors, `duplicate node id "A"`))
	})

	t.Run("control characters in id", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes[2].ID = "C\n        x = 1\n        #"
		f.Edges[1].ToNodeID = f.Nodes[2].ID

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.Equal(t, StageSchema, result.Errors[0].Stage)
		assert.True(t, hasMessage(result.Errors, "control characters"))
	})

	t.Run("disconnected node", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "lonely", Type: Indicator, Parameters: map[string]any{"indicator": "RSI"}})

		result := v.Validate(f)

		assert.True(t, result.IsValid)
		assert.True(t, hasMessage(result.Warnings, "not connected"))
	})
}

func TestValidate_Cycle(t *testing.T) {
	v := NewValidator(testCatalog(t))
	f := &LogicFlow{
		Nodes: []Node{
			{ID: "A", Type: Indicator, Parameters: map[string]any{"indicator": "SMA"}},
			{ID: "B", Type: Indicator, Parameters: map[string]any{"indicator": "EMA"}},
			{ID: "C", Type: Indicator, Parameters: map[string]any{"indicator": "WMA"}},
		},
		Edges: []Edge{
			{FromNodeID: "A", ToNodeID: "B"},
			{FromNodeID: "B", ToNodeID: "C"},
			{FromNodeID: "C", ToNodeID: "A"},
		},
	}

	result := v.Validate(f)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StageGraph, result.Errors[0].Stage)
	assert.Equal(t, "A", result.Errors[0].Location.NodeID)
	assert.Contains(t, result.Errors[0].Message, "A -> B -> C -> A")
}

func TestValidate_PortTypes(t *testing.T) {
	t.Run("boolean series into numeric input", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "D", Type: Condition, Parameters: map[string]any{"operator": "gt", "threshold": 1.0}})
		f.Edges = append(f.Edges, Edge{FromNodeID: "B", ToNodeID: "D", ToPort: "left"})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.Equal(t, StageType, result.Errors[0].Stage)
		assert.Contains(t, result.Errors[0].Message, "boolean_series")
	})

	t.Run("unknown port", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Edges[0].ToPort = "middle"

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.True(t, hasMessage(result.Errors, `no input port "middle"`))
	})

	t.Run("single-connection port", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "E", Type: Indicator, Parameters: map[string]any{"indicator": "EMA"}})
		f.Edges = append(f.Edges, Edge{FromNodeID: "E", ToNodeID: "B", ToPort: "right"})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.True(t, hasMessage(result.Errors, "accepts a single connection"))
	})

	t.Run("multi-connection port", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "D", Type: Condition, Parameters: map[string]any{"operator": "lt", "threshold": 500.0}})
		f.Edges = append(f.Edges, Edge{FromNodeID: "D", ToNodeID: "C"})

		result := v.Validate(f)

		assert.True(t, result.IsValid, "errors: %v", result.Errors)
	})
}

func TestValidate_Semantics(t *testing.T) {
	t.Run("allocation over 100 percent", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := fullFlow()
		f.Nodes = append(f.Nodes, Node{ID: "size2", Type: Position, Parameters: map[string]any{"allocation": 50.1}})
		f.Edges = append(f.Edges, Edge{FromNodeID: "sell", ToNodeID: "size2"})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.Equal(t, StageSemantic, result.Errors[0].Stage)
		assert.Contains(t, result.Errors[0].Message, "100.1%")
	})

	t.Run("allocation exactly 100 percent", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := fullFlow()
		f.Nodes = append(f.Nodes, Node{ID: "size2", Type: Position, Parameters: map[string]any{"allocation": 50.0}})
		f.Edges = append(f.Edges, Edge{FromNodeID: "sell", ToNodeID: "size2"})

		result := v.Validate(f)

		assert.True(t, result.IsValid, "errors: %v", result.Errors)
	})

	t.Run("position without signal is a warning", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "P", Type: Position, Parameters: map[string]any{"allocation": 10.0}})

		result := v.Validate(f)

		assert.True(t, result.IsValid)
		assert.True(t, hasMessage(result.Warnings, "not preceded by a signal"))
	})

	t.Run("signal without trigger", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Nodes = append(f.Nodes, Node{ID: "S", Type: Signal, Parameters: map[string]any{"action": "SELL"}})

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.True(t, hasMessage(result.Errors, `required input port "trigger"`))
	})

	t.Run("condition without right operand", func(t *testing.T) {
		v := NewValidator(testCatalog(t))
		f := smaFlow()
		f.Edges = f.Edges[1:]
		f.Nodes[0] = Node{ID: "A2", Type: Indicator, Parameters: map[string]any{"indicator": "SMA"}}

		result := v.Validate(f)

		assert.False(t, result.IsValid)
		assert.True(t, hasMessage(result.Errors, "no right operand"))
	})
}
