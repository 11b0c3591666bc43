package flow

import "fmt"

// Sort returns the nodes of f in topological order using Kahn's algorithm.
//
// Among nodes that become ready at the same time, the one that appears first
// in f.Nodes goes first, so the same flow always sorts the same way. If any
// node is left over the flow has a cycle and Sort returns a *GraphError of
// kind GraphErrorCycle instead of a partial order.
func Sort(f *LogicFlow) ([]Node, error) {
	position := make(map[string]int, len(f.Nodes))
	for i, n := range f.Nodes {
		if _, dup := position[n.ID]; dup {
			return nil, &GraphError{
				Kind:  GraphErrorDuplicate,
				Nodes: []string{n.ID},
				Msg:   fmt.Sprintf("duplicate node id %q", n.ID),
			}
		}
		position[n.ID] = i
	}

	inDegree := make([]int, len(f.Nodes))
	for _, e := range f.Edges {
		to, okTo := position[e.ToNodeID]
		_, okFrom := position[e.FromNodeID]
		if !okTo || !okFrom {
			return nil, &GraphError{
				Kind:  GraphErrorUnknownNode,
				Nodes: []string{e.FromNodeID, e.ToNodeID},
				Msg:   fmt.Sprintf("edge %s references an unknown node", e),
			}
		}
		inDegree[to]++
	}
	edgeMap := buildEdgeMap(f.Edges)

	// ready holds node positions; it is kept sorted so ties resolve by
	// insertion order.
	var ready []int
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]Node, 0, len(f.Nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, f.Nodes[current])

		for _, e := range edgeMap[f.Nodes[current].ID] {
			next := position[e.ToNodeID]
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}

	if len(ordered) != len(f.Nodes) {
		var stuck []string
		for i, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, f.Nodes[i].ID)
			}
		}
		return nil, &GraphError{
			Kind:  GraphErrorCycle,
			Nodes: stuck,
			Msg:   fmt.Sprintf("cycle detected among nodes %v", stuck),
		}
	}
	return ordered, nil
}

func insertSorted(s []int, v int) []int {
	i := len(s)
	for i > 0 && s[i-1] > v {
		i--
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
