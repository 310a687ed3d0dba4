package domain

// EventTypePollResponse marks inbound events that carry a structured
// vote instead of free text.
const EventTypePollResponse = "poll_response"

// DefaultIgnoredEventTypes are protocol-level event types that never
// represent user content and are dropped by the dispatcher.
var DefaultIgnoredEventTypes = []string{
	"e2e_notification",
	"call_log",
	"protocol",
	"ciphertext",
}

// InboundMedia is a media attachment delivered with an inbound event.
type InboundMedia struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

// InboundEvent is a single conversational event from the transport.
// Delivery is at-least-once; MessageID drives deduplication.
type InboundEvent struct {
	ChatID    string        `json:"chatId"`
	MessageID string        `json:"messageId"`
	Type      string        `json:"type"`
	Body      string        `json:"body"`
	Media     *InboundMedia `json:"media,omitempty"`

	// SelectedOption carries the voted label when Type is
	// EventTypePollResponse.
	SelectedOption string `json:"selectedOption,omitempty"`
}

// IsVote reports whether the event is a structured poll response.
func (e InboundEvent) IsVote() bool {
	return e.Type == EventTypePollResponse
}

// PollVote is a vote delivered out-of-band from the ordinary message
// stream (the transport's parallel vote event).
type PollVote struct {
	Voter    string   `json:"voter"`
	Selected []string `json:"selected"`
}

// ChatTurn is one entry of recent conversation context handed to the
// AI fallback responder.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Receipt is the result of financial-data extraction from an inbound
// document.
type Receipt struct {
	IsValid bool   `json:"isValid"`
	Value   string `json:"value,omitempty"`
	Date    string `json:"date,omitempty"`
	Payer   string `json:"payer,omitempty"`
}
