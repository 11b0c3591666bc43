package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadCatalog()
	require.NoError(t, err)
	return c
}

// smaFlow is the A(SMA) -> B(close > sma) -> C(BUY) chain.
func smaFlow() *LogicFlow {
	return &LogicFlow{
		Nodes: []Node{
			{ID: "A", Type: Indicator, Label: "SMA 20", Parameters: map[string]any{"indicator": "SMA", "period": 20.0}},
			{ID: "B", Type: Condition, Label: "close > sma", Parameters: map[string]any{"operator": "gt", "left": "close"}},
			{ID: "C", Type: Signal, Label: "Buy", Parameters: map[string]any{"action": "BUY"}},
		},
		Edges: []Edge{
			{FromNodeID: "A", ToNodeID: "B", ToPort: "right"},
			{FromNodeID: "B", ToNodeID: "C"},
		},
	}
}

// fullFlow is a complete buy/sell strategy with sizing and exits.
func fullFlow() *LogicFlow {
	return &LogicFlow{
		Nodes: []Node{
			{ID: "fast", Type: Indicator, Parameters: map[string]any{"indicator": "EMA", "period": 12.0}},
			{ID: "slow", Type: Indicator, Parameters: map[string]any{"indicator": "EMA", "period": 26.0}},
			{ID: "up", Type: Condition, Parameters: map[string]any{"operator": "cross_above"}},
			{ID: "down", Type: Condition, Parameters: map[string]any{"operator": "cross_below"}},
			{ID: "buy", Type: Signal, Parameters: map[string]any{"action": "BUY"}},
			{ID: "sell", Type: Signal, Parameters: map[string]any{"action": "SELL"}},
			{ID: "size", Type: Position, Parameters: map[string]any{"allocation": 50.0}},
			{ID: "stop", Type: StopLoss, Parameters: map[string]any{"percent": 5.0, "trailing": true}},
			{ID: "take", Type: StopProfit, Parameters: map[string]any{"percent": 15.0}},
		},
		Edges: []Edge{
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
