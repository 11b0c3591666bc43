package flow

// DFS colors.
const (
	white = iota // unvisited
	gray         // on the current path
	black        // done
)

// DetectCircularDependency searches the graph for a cycle using a
// three-color depth-first traversal in node insertion order.
//
// It returns nil for an acyclic graph. Otherwise it returns the cycle as a
// closed path that starts and ends at the entry node, the node the back-edge
// points to, e.g. [A B C A]. Edges to unknown nodes are ignored.
func DetectCircularDependency(nodes []Node, edges []Edge) []string {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	adjacency := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if known[e.FromNodeID] && known[e.ToNodeID] {
			adjacency[e.FromNodeID] = append(adjacency[e.FromNodeID], e.ToNodeID)
		}
	}

	color := make(map[string]int, len(nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, n := range nodes {
		if color[n.ID] == white && visit(n.ID) {
			return cycle
		}
	}
	return nil
}
