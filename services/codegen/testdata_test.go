package codegen

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"logicflow/services/flow"
	"logicflow/services/security"
)

func testCatalog(t *testing.T) *flow.Catalog {
	t.Helper()
	c, err := flow.LoadCatalog()
	require.NoError(t, err)
	return c
}

// catalogWith loads the shipped catalog text with one substitution applied.
func catalogWith(t *testing.T, old, replacement string) *flow.Catalog {
	t.Helper()
	data, err := os.ReadFile("../flow/catalog.yaml")
	require.NoError(t, err)
	require.Contains(t, string(data), old)
	c, err := flow.NewCatalog([]byte(strings.Replace(string(data), old, replacement, 1)))
	require.NoError(t, err)
	return c
}

func newTestGenerator(t *testing.T, store Store) *Generator {
	t.Helper()
	return NewGenerator(testCatalog(t), security.NewValidator(security.DefaultPolicy()), store)
}

func generate(t *testing.T, g *Generator, f *flow.LogicFlow, params map[string]any) *GeneratedCode {
	t.Helper()
	code, err := g.Generate(context.Background(), GenerateRequest{
		InstanceID:      "inst-1",
		Flow:            f,
		Parameters:      params,
		IncludeComments: true,
	})
	require.NoError(t, err)
	return code
}

// smaFlow is the A(SMA) -> B(close > sma) -> C(BUY) chain.
func smaFlow() *flow.LogicFlow {
	return &flow.LogicFlow{
		Nodes: []flow.Node{
			{ID: "A", Type: flow.Indicator, Label: "SMA 20", Parameters: map[string]any{"indicator": "SMA", "period": 20.0}},
			{ID: "B", Type: flow.Condition, Label: "close > sma", Parameters: map[string]any{"operator": "gt", "left": "close"}},
			{ID: "C", Type: flow.Signal, Label: "Buy", Parameters: map[string]any{"action": "BUY"}},
		},
		Edges: []flow.Edge{
			{FromNodeID: "A", ToNodeID: "B", ToPort: "right"},
			{FromNodeID: "B", ToNodeID: "C"},
		},
	}
}

// fullFlow is an EMA crossover with sizing, a trailing stop and a take profit.
func fullFlow() *flow.LogicFlow {
	return &flow.LogicFlow{
		Nodes: []flow.Node{
			{ID: "fast", Type: flow.Indicator, Parameters: map[string]any{"indicator": "EMA", "period": 12.0}},
			{ID: "slow", Type: flow.Indicator, Parameters: map[string]any{"indicator": "EMA", "period": 26.0}},
			{ID: "up", Type: flow.Condition, Parameters: map[string]any{"operator": "cross_above"}},
			{ID: "down", Type: flow.Condition, Parameters: map[string]any{"operator": "cross_below"}},
			{ID: "buy", Type: flow.Signal, Parameters: map[string]any{"action": "BUY"}},
			{ID: "sell", Type: flow.Signal, Parameters: map[string]any{"action": "SELL"}},
			{ID: "size", Type: flow.Position, Parameters: map[string]any{"allocation": 50.0}},
			{ID: "stop", Type: flow.StopLoss, Parameters: map[string]any{"percent": 5.0, "trailing": true}},
			{ID: "take", Type: flow.StopProfit, Parameters: map[string]any{"percent": 15.0}},
		},
		Edges: []flow.Edge{
			{FromNodeID: "fast", ToNodeID: "up", ToPort: "left"},
			{FromNodeID: "slow", ToNodeID: "up", ToPort: "right"},
			{FromNodeID: "fast", ToNodeID: "down", ToPort: "left"},
			{FromNodeID: "slow", ToNodeID: "down", ToPort: "right"},
			{FromNodeID: "up", ToNodeID: "buy"},
			{FromNodeID: "down", ToNodeID: "sell"},
			{FromNodeID: "buy", ToNodeID: "size"},
			{FromNodeID: "size", ToNodeID: "stop"},
			{FromNodeID: "size", ToNodeID: "take"},
		},
	}
}
