package flow

// NodeType is the closed set of node kinds a logic flow may contain.
type NodeType string

const (
	Indicator  NodeType = "indicator"
	Condition  NodeType = "condition"
	Signal     NodeType = "signal"
	Position   NodeType = "position"
	StopLoss   NodeType = "stop_loss"
	StopProfit NodeType = "stop_profit"
)

var nodeTypes = []NodeType{Indicator, Condition, Signal, Position, StopLoss, StopProfit}

// NodeTypes returns every node type in emission section order.
func NodeTypes() []NodeType {
	out := make([]NodeType, len(nodeTypes))
	copy(out, nodeTypes)
	return out
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, nt := range nodeTypes {
		if nt == t {
			return true
		}
	}
	return false
}

// LogicFlow is the node/edge graph a user authors in the strategy builder.
// The compiler only reads it.
type LogicFlow struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a single typed step of a logic flow.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Parameters map[string]any `json:"parameters"`
	Label      string         `json:"label,omitempty"`
}

// Edge connects an output port of one node to an input port of another.
// Empty ports select the node type's default port.
type Edge struct {
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	FromPort   string `json:"from_port,omitempty"`
	ToPort     string `json:"to_port,omitempty"`
}

// String renders the edge as "from->to" for violation locations and logs.
func (e Edge) String() string {
	return e.FromNodeID + "->" + e.ToNodeID
}

// Node returns the node with the given id.
func (f *LogicFlow) Node(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// Incoming returns the edges ending at id, in edge order.
func (f *LogicFlow) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.ToNodeID == id {
			out = append(out, e)
		}
	}
	return out
}

// buildEdgeMap indexes outgoing edges by source node id, preserving edge order.
func buildEdgeMap(edges []Edge) map[string][]Edge {
	m := make(map[string][]Edge)
	for _, edge := range edges {
		m[edge.FromNodeID] = append(m[edge.FromNodeID], edge)
	}
	return m
}
