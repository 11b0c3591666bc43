package flow

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// maxTotalAllocation is the ceiling, in percent, on the sum of Position allocations.
var maxTotalAllocation = decimal.NewFromInt(100)

// Validator checks logic flows against a catalog. It holds no mutable state
// and may be shared between goroutines.
type Validator struct {
	catalog *Catalog
}

// NewValidator creates a Validator backed by the given catalog.
func NewValidator(catalog *Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate runs the schema, structure, cycle, port-type and semantic stages
// in that order. A stage that reports an error stops the run; warnings are
// collected from every stage that ran.
func (v *Validator) Validate(f *LogicFlow) ValidationResult {
	r := ValidationResult{Errors: []Violation{}, Warnings: []Violation{}}
	if f == nil || len(f.Nodes) == 0 {
		r.add(Violation{Stage: StageSchema, Severity: SeverityError, Message: "logic flow has no nodes"})
		return r
	}

	stages := []func(*LogicFlow) []Violation{
		v.checkSchema,
		v.checkStructure,
		v.checkCycles,
		v.checkPorts,
		v.checkSemantics,
	}
	for _, stage := range stages {
		r.addAll(stage(f))
		if len(r.Errors) > 0 {
			break
		}
	}
	r.IsValid = len(r.Errors) == 0
	return r
}

func (v *Validator) checkSchema(f *LogicFlow) []Violation {
	var out []Violation
	for i, n := range f.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			out = append(out, Violation{
				Stage: StageSchema, Severity: SeverityError,
				Message: fmt.Sprintf("node at index %d has no id", i),
			})
			continue
		}
		if !printable(n.ID) {
			out = append(out, Violation{
				Stage: StageSchema, Severity: SeverityError,
				Message: fmt.Sprintf("node at index %d has an id with control characters: %q", i, n.ID),
			})
			continue
		}
		spec, ok := v.catalog.Node(n.Type)
		if !ok {
			out = append(out, Violation{
				Stage: StageSchema, Severity: SeverityError, Location: Location{NodeID: n.ID},
				Message: fmt.Sprintf("node type %q is not registered", n.Type),
			})
			continue
		}
		out = append(out, spec.Schema.Check(n.ID, n.Parameters)...)
	}
	return out
}

// printable reports whether every rune of s is a printable character.
func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func (v *Validator) checkStructure(f *LogicFlow) []Violation {
	var out []Violation
	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if seen[n.ID] {
			out = append(out, Violation{
				Stage: StageGraph, Severity: SeverityError, Location: Location{NodeID: n.ID},
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
			})
		}
		seen[n.ID] = true
	}

	connected := make(map[string]bool, len(f.Nodes))
	for _, e := range f.Edges {
		for _, id := range []string{e.FromNodeID, e.ToNodeID} {
			if !seen[id] {
				out = append(out, Violation{
					Stage: StageGraph, Severity: SeverityError, Location: Location{Edge: e.String()},
					Message: fmt.Sprintf("edge references unknown node %q", id),
				})
			}
			connected[id] = true
		}
	}

	if len(f.Nodes) > 1 {
		for _, n := range f.Nodes {
			if !connected[n.ID] {
				out = append(out, Violation{
					Stage: StageGraph, Severity: SeverityWarning, Location: Location{NodeID: n.ID},
					Message: "node is not connected to any edge",
				})
			}
		}
	}
	return out
}

func (v *Validator) checkCycles(f *LogicFlow) []Violation {
	cycle := DetectCircularDependency(f.Nodes, f.Edges)
	if cycle == nil {
		return nil
	}
	return []Violation{{
		Stage: StageGraph, Severity: SeverityError, Location: Location{NodeID: cycle[0]},
		Message: fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")),
	}}
}

func (v *Validator) checkPorts(f *LogicFlow) []Violation {
	var out []Violation
	type target struct{ node, port string }
	fanIn := make(map[target]int)

	for _, e := range f.Edges {
		from, _ := f.Node(e.FromNodeID)
		to, _ := f.Node(e.ToNodeID)
		fromSpec, _ := v.catalog.Node(from.Type)
		toSpec, _ := v.catalog.Node(to.Type)
		loc := Location{Edge: e.String()}

		src, ok := fromSpec.Output(e.FromPort)
		if !ok {
			out = append(out, Violation{
				Stage: StageType, Severity: SeverityError, Location: loc,
				Message: fmt.Sprintf("%s node %q has no output port %q", from.Type, from.ID, e.FromPort),
			})
			continue
		}
		dst, ok := toSpec.Input(e.ToPort)
		if !ok {
			out = append(out, Violation{
				Stage: StageType, Severity: SeverityError, Location: loc,
				Message: fmt.Sprintf("%s node %q has no input port %q", to.Type, to.ID, e.ToPort),
			})
			continue
		}
		if !Compatible(src.Type, dst.Type) {
			out = append(out, Violation{
				Stage: StageType, Severity: SeverityError, Location: loc,
				Message: fmt.Sprintf("port %s.%s (%s) cannot feed %s.%s (%s)",
					from.ID, src.Name, src.Type, to.ID, dst.Name, dst.Type),
			})
			continue
		}

		t := target{to.ID, dst.Name}
		fanIn[t]++
		if fanIn[t] == 2 && !dst.Multiple {
			out = append(out, Violation{
				Stage: StageType, Severity: SeverityError, Location: loc,
				Message: fmt.Sprintf("input port %s.%s accepts a single connection", to.ID, dst.Name),
			})
		}
	}
	return out
}

func (v *Validator) checkSemantics(f *LogicFlow) []Violation {
	var out []Violation

	polarity := map[string]bool{}
	total := decimal.Zero
	for _, n := range f.Nodes {
		spec, _ := v.catalog.Node(n.Type)
		params := spec.Schema.Resolve(n.Parameters)
		connected := v.connectedInputs(f, n.ID, spec)

		for _, port := range spec.Inputs {
			if port.Required && !connected[port.Name] {
				out = append(out, Violation{
					Stage: StageSemantic, Severity: SeverityError, Location: Location{NodeID: n.ID},
					Message: fmt.Sprintf("required input port %q is not connected", port.Name),
				})
			}
		}

		switch n.Type {
		case Signal:
			if action, ok := params["action"].(string); ok {
				polarity[action] = true
			}
		case Condition:
			_, hasRight := params["right"]
			_, hasThreshold := params["threshold"]
			if !connected["right"] && !hasRight && !hasThreshold {
				out = append(out, Violation{
					Stage: StageSemantic, Severity: SeverityError, Location: Location{NodeID: n.ID},
					Message: "condition has no right operand: connect the right port or set right or threshold",
				})
			}
		case Position:
			if alloc, ok := ToFloat64(params["allocation"]); ok {
				total = total.Add(decimal.NewFromFloat(alloc))
			}
			if !v.hasAncestorOfType(f, n.ID, Signal) {
				out = append(out, Violation{
					Stage: StageSemantic, Severity: SeverityWarning, Location: Location{NodeID: n.ID},
					Message: "position is not preceded by a signal",
				})
			}
		}
	}

	for _, action := range []string{"BUY", "SELL"} {
		if !polarity[action] {
			out = append(out, Violation{
				Stage: StageSemantic, Severity: SeverityWarning,
				Message: fmt.Sprintf("flow has no %s signal", action),
			})
		}
	}

	if total.GreaterThan(maxTotalAllocation) {
		out = append(out, Violation{
			Stage: StageSemantic, Severity: SeverityError,
			Message: fmt.Sprintf("total position allocation %s%% exceeds %s%%", total.String(), maxTotalAllocation.String()),
		})
	}
	return out
}

// connectedInputs returns the input port names of node id that have an incoming edge.
func (v *Validator) connectedInputs(f *LogicFlow, id string, spec *NodeSpec) map[string]bool {
	out := make(map[string]bool)
	for _, e := range f.Incoming(id) {
		if in, ok := spec.Input(e.ToPort); ok {
			out[in.Name] = true
		}
	}
	return out
}

// hasAncestorOfType reports whether any node upstream of id has type t.
func (v *Validator) hasAncestorOfType(f *LogicFlow, id string, t NodeType) bool {
	reverse := make(map[string][]string)
	for _, e := range f.Edges {
		reverse[e.ToNodeID] = append(reverse[e.ToNodeID], e.FromNodeID)
	}
	visited := map[string]bool{id: true}
	queue := append([]string(nil), reverse[id]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if n, ok := f.Node(current); ok && n.Type == t {
			return true
		}
		queue = append(queue, reverse[current]...)
	}
	return false
}
