package codegen

import (
	"fmt"
	"strings"

	"logicflow/services/flow"
)

// Fragment is the rendered code for one node.
type Fragment struct {
	NodeID  string
	Type    flow.NodeType
	Var     string
	Comment string
	Code    string
	Imports []string
}

// Bindings maps each connected input port of a node to the variables feeding it.
type Bindings map[string][]string

// Emitter renders nodes into code fragments using the catalog's per-type templates.
type Emitter struct {
	catalog *flow.Catalog
}

// NewEmitter creates an Emitter backed by the given catalog.
func NewEmitter(catalog *flow.Catalog) *Emitter {
	return &Emitter{catalog: catalog}
}

// Emit renders one node. Parameters are resolved against the node's schema
// and every value is rendered as a Python literal or checked identifier
// before it reaches the template.
func (e *Emitter) Emit(node flow.Node, varName string, inputs Bindings) (Fragment, error) {
	spec, ok := e.catalog.Node(node.Type)
	if !ok {
		return Fragment{}, fmt.Errorf("no template registered for node type %q", node.Type)
	}
	if _, err := pyIdentifier(varName); err != nil {
		return Fragment{}, fmt.Errorf("node %q: %w", node.ID, err)
	}
	params := spec.Schema.Resolve(node.Parameters)

	var r rendered
	var err error
	switch node.Type {
	case flow.Indicator:
		r, err = e.renderIndicator(params, inputs)
	case flow.Condition:
		r, err = e.renderCondition(params, inputs)
	case flow.Signal:
		r, err = renderSignal(params, inputs)
	case flow.Position:
		r, err = renderPosition(params, inputs)
	case flow.StopLoss:
		r, err = renderStopLoss(params, inputs)
	case flow.StopProfit:
		r, err = renderStopProfit(params, inputs)
	default:
		err = fmt.Errorf("unsupported node type %q", node.Type)
	}
	if err != nil {
		return Fragment{}, fmt.Errorf("node %q: %w", node.ID, err)
	}

	r.data["Var"] = varName
	var b strings.Builder
	if err := spec.Template.Execute(&b, r.data); err != nil {
		return Fragment{}, fmt.Errorf("node %q: render template: %w", node.ID, err)
	}

	comment := commentText(node.ID)
	if label := commentText(node.Label); label != "" {
		comment += ": " + label
	}
	return Fragment{
		NodeID:  node.ID,
		Type:    node.Type,
		Var:     varName,
		Comment: comment,
		Code:    strings.TrimRight(b.String(), "\n"),
		Imports: r.imports,
	}, nil
}

// EmitAll renders ordered nodes in sequence, naming each node's variable and
// wiring every input port to the variables of the nodes feeding it.
func (e *Emitter) EmitAll(f *flow.LogicFlow, ordered []flow.Node) ([]Fragment, error) {
	used := make(map[string]bool, len(ordered))
	vars := make(map[string]string, len(ordered))
	fragments := make([]Fragment, 0, len(ordered))

	for _, node := range ordered {
		spec, ok := e.catalog.Node(node.Type)
		if !ok {
			return nil, fmt.Errorf("no template registered for node type %q", node.Type)
		}

		inputs := make(Bindings)
		for _, edge := range f.Incoming(node.ID) {
			port, ok := spec.Input(edge.ToPort)
			if !ok {
				return nil, fmt.Errorf("node %q has no input port %q", node.ID, edge.ToPort)
			}
			upstream, ok := vars[edge.FromNodeID]
			if !ok {
				return nil, &flow.GraphError{
					Kind:  flow.GraphErrorUnknownNode,
					Nodes: []string{edge.FromNodeID, node.ID},
					Msg:   fmt.Sprintf("node %q is used by %q before it is emitted", edge.FromNodeID, node.ID),
				}
			}
			inputs[port.Name] = append(inputs[port.Name], upstream)
		}

		name := varName(spec.Prefix, node.ID, used)
		frag, err := e.Emit(node, name, inputs)
		if err != nil {
			return nil, err
		}
		vars[node.ID] = name
		fragments = append(fragments, frag)
	}
	return fragments, nil
}
