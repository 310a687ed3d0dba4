package ports

import (
	"context"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// Transport is the messaging channel the engine drives. Implementations
// must be safe for concurrent use across chat identities; the engine
// serializes calls per chat but not globally.
type Transport interface {
	// SendText delivers a plain text message.
	SendText(ctx context.Context, chatID, text string) error

	// SendMedia delivers a materialized media artifact. The engine owns
	// the artifact's lifetime; implementations must not retain the path
	// after returning.
	SendMedia(ctx context.Context, chatID string, media domain.OutboundMedia) error

	// SendPoll presents options as a structured vote-capable message.
	// Implementations should honor ctx deadlines; the engine falls back
	// to a numbered text list on timeout or error.
	SendPoll(ctx context.Context, chatID, question string, options []string) error

	// Presence signals. Best effort; failures are ignored by callers.
	SetTyping(ctx context.Context, chatID string) error
	SetRecording(ctx context.Context, chatID string) error
	ClearPresence(ctx context.Context, chatID string) error

	// Ready reports whether the channel is authenticated and connected.
	Ready() bool
}

// Responder is the AI fallback collaborator. It is a policy hook
// invoked by the dispatcher when no session exists and the inbound text
// is not a recognized start keyword; it is not part of the state
// machine itself.
type Responder interface {
	Reply(ctx context.Context, chatID, message string, history []domain.ChatTurn) (string, error)
}

// ReceiptExtractor pulls financial data out of an inbound document.
// When wired, it short-circuits normal dispatch for document events.
type ReceiptExtractor interface {
	Extract(ctx context.Context, data []byte) (domain.Receipt, error)
}
