package domain

import "time"

// Edge is a directed transition between two nodes.
//
// SourceHandle, when set, ties the edge to a specific menu option id;
// it is empty for nodes with a single successor.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Graph is one published version of the conversation flow. A save from
// the authoring surface always replaces the whole graph.
type Graph struct {
	ID        string         `json:"id,omitempty"`
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	Viewport  map[string]any `json:"viewport,omitempty"`
	Active    bool           `json:"active"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
}

// StartNode returns the graph's entry node. Upstream validation should
// guarantee exactly one, but the engine never assumes it held.
func (g *Graph) StartNode() (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.Type == NodeStart {
			return n, true
		}
	}
	return Node{}, false
}

// NodeByID looks up a node. The second return is false when the id is
// unknown, which callers must treat as a stale-session signal rather
// than an error.
func (g *Graph) NodeByID(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// EdgesFrom returns the outgoing edges of a node in authored order.
// Dangling edges are returned as-is; resolving their targets is the
// caller's problem and a missing target yields "no match", not a crash.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	if g == nil {
		return nil
	}
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
