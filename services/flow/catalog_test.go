package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_AllNodeTypesRegistered(t *testing.T) {
	c := testCatalog(t)

	for _, nt := range NodeTypes() {
		schema, err := c.GetNodeSchema(nt)
		require.NoError(t, err, "node type %s", nt)
		assert.Equal(t, nt, schema.NodeType)

		spec, ok := c.Node(nt)
		require.True(t, ok)
		assert.NotEmpty(t, spec.Section)
		assert.NotEmpty(t, spec.Prefix)
		assert.NotNil(t, spec.Template)
	}
}

func TestGetNodeSchema_Unknown(t *testing.T) {
	c := testCatalog(t)

	_, err := c.GetNodeSchema(NodeType("webhook"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalog))
}

func TestGetFactorCatalog(t *testing.T) {
	c := testCatalog(t)

	trend := c.GetFactorCatalog("trend")
	names := make([]string, 0, len(trend))
	for _, f := range trend {
		names = append(names, f.Name)
		assert.Equal(t, "trend", f.Category)
	}
	assert.Equal(t, []string{"EMA", "SMA", "WMA"}, names)

	all := c.GetFactorCatalog("")
	assert.Len(t, all, len(c.FactorNames()))
	assert.Empty(t, c.GetFactorCatalog("sentiment"))
}

func TestIndicatorEnumFollowsFactors(t *testing.T) {
	c := testCatalog(t)

	schema, err := c.GetNodeSchema(Indicator)
	require.NoError(t, err)
	p, ok := schema.Lookup("indicator")
	require.True(t, ok)
	assert.Equal(t, c.FactorNames(), p.Values)
}

func TestNewCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed yaml", "nodes: ["},
		{"missing node types", "nodes:\n  indicator:\n    template: x\n"},
		{"unknown node type", "nodes:\n  webhook:\n    template: x\n"},
		{"bad template", "operators:\n  gt: {expression: \"{{.Left\"}\n"},
		{"bad values_from", "nodes:\n  signal:\n    parameters:\n      - {name: action, kind: enum, values_from: nowhere}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCatalog))
		})
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		from, to PortType
		want     bool
	}{
		{PortNumericSeries, PortNumericSeries, true},
		{PortNumber, PortNumericSeries, true},
		{PortBooleanSeries, PortBooleanSeries, true},
		{PortBooleanSeries, PortNumericSeries, false},
		{PortNumericSeries, PortBooleanSeries, false},
		{PortNumericSeries, PortNumber, false},
		{PortSignal, PortOrder, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Compatible(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParameterSchema_Resolve(t *testing.T) {
	c := testCatalog(t)
	schema, err := c.GetNodeSchema(Indicator)
	require.NoError(t, err)

	got := schema.Resolve(map[string]any{"indicator": "RSI", "extra": 1})

	assert.Equal(t, map[string]any{"indicator": "RSI", "period": 14, "source": "close"}, got)
}
