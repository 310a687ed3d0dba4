package domain

// NodeType constants define the control flow behavior of a node.
type NodeType string

const (
	// NodeStart is the single entry point of a graph. No side effects.
	NodeStart NodeType = "start"
	// NodeContent sends a text message and continues immediately.
	NodeContent NodeType = "content"
	// NodeMenu presents options and halts waiting for a reply (the only
	// blocking node type).
	NodeMenu NodeType = "menu"
	// NodeDelay pauses for a configured number of seconds.
	NodeDelay NodeType = "delay"

	// Media node types deliver an inline-encoded payload.
	NodeImage    NodeType = "image"
	NodeVideo    NodeType = "video"
	NodeAudio    NodeType = "audio"
	NodeDocument NodeType = "document"
)

// IsMedia reports whether the node type carries an inline media payload.
func (t NodeType) IsMedia() bool {
	switch t {
	case NodeImage, NodeVideo, NodeAudio, NodeDocument:
		return true
	}
	return false
}

// Node represents one authored step in the conversation graph.
//
// Data holds the type-specific payload exactly as the authoring surface
// produced it. The structure varies per node type and per builder
// version, so it is kept loosely typed here and decoded defensively
// through the payload accessors in payload.go.
type Node struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}
