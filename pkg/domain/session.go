package domain

import "time"

// Session is the volatile runtime pointer to a chat's current node.
// One per chat identity, at most one live at a time. It is destroyed
// when the graph ends or reset when a reloaded graph no longer contains
// the referenced node.
type Session struct {
	ChatID        string    `json:"chatId"`
	CurrentNodeID string    `json:"currentNodeId"`
	StartedAt     time.Time `json:"startedAt"`
}

// NewSession creates a session parked at the given node.
func NewSession(chatID, nodeID string) *Session {
	return &Session{
		ChatID:        chatID,
		CurrentNodeID: nodeID,
		StartedAt:     time.Now(),
	}
}
