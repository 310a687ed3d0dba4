package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zapflowhq/zapflow/internal/flow"
	"github.com/zapflowhq/zapflow/internal/metrics"
	"github.com/zapflowhq/zapflow/internal/session"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

const (
	// Typing presence is proportional to text length, bounded to stay
	// believable.
	typingPerRune = 50 * time.Millisecond
	typingMin     = 1 * time.Second
	typingMax     = 5 * time.Second

	menuTypingTime   = 3 * time.Second
	mediaTypingTime  = 2 * time.Second
	recordingTime    = 3 * time.Second
	pollSendTimeout  = 10 * time.Second
	defaultMaxHops   = 64
	defaultNodeText  = "..."
	menuPrompt       = "Escolha uma opção:"
	menuRecoveryHint = "Escolha uma opção (digite o nome):"
)

// MediaDeliverer materializes and sends a node's inline media payload.
// Implemented by the media pipeline; failures are handled inside (retry
// chains, fallbacks, apology text) and never propagate.
type MediaDeliverer interface {
	Deliver(ctx context.Context, chatID string, node domain.Node) error
	DeliverVoice(ctx context.Context, chatID string, node domain.Node) error
}

// Processor executes nodes for one chat: it performs each node's side
// effects and walks forward through non-interactive nodes until a menu
// blocks or the graph ends.
type Processor struct {
	host      *flow.Host
	sessions  *session.Registry
	transport ports.Transport
	media     MediaDeliverer
	logger    *slog.Logger

	maxHops int
	wait    func(ctx context.Context, d time.Duration)
}

// ProcessorOption configures the Processor.
type ProcessorOption func(*Processor)

// WithMaxHops bounds the auto-advance walk. A misauthored cyclic
// subgraph aborts with a log line instead of spinning forever.
func WithMaxHops(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxHops = n
		}
	}
}

// WithWait injects the wait function (tests use an instant one).
func WithWait(wait func(ctx context.Context, d time.Duration)) ProcessorOption {
	return func(p *Processor) {
		p.wait = wait
	}
}

// NewProcessor creates a node processor.
func NewProcessor(host *flow.Host, sessions *session.Registry, transport ports.Transport, media MediaDeliverer, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		host:      host,
		sessions:  sessions,
		transport: transport,
		media:     media,
		logger:    logger,
		maxHops:   defaultMaxHops,
		wait:      sleepWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepWait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run processes the given node and auto-advances until a menu blocks,
// the graph ends (session destroyed), or the hop cap trips. The caller
// must hold the chat's lock.
func (p *Processor) Run(ctx context.Context, chatID, nodeID string) {
	for hops := 0; ; hops++ {
		if hops >= p.maxHops {
			p.logger.Error("auto-advance hop limit reached, aborting walk",
				"chat", chatID, "node", nodeID, "max_hops", p.maxHops)
			return
		}

		graph := p.host.Current()
		if graph == nil {
			return
		}

		node, ok := graph.NodeByID(nodeID)
		if !ok {
			// Unrecognized node: no-op. The next inbound event resets
			// the session through the dispatcher's stale-node path.
			p.logger.Warn("node not found while processing", "chat", chatID, "node", nodeID)
			return
		}

		p.logger.Info("processing node", "chat", chatID, "node", node.ID, "type", node.Type)
		metrics.NodesProcessed.WithLabelValues(string(node.Type)).Inc()

		blocked, err := p.process(ctx, chatID, node)
		if err != nil {
			// Contain the failure at node level. The session is left
			// where it is: advancing past a half-executed node would
			// silently skip flow steps.
			p.recover(ctx, chatID, node, err)
			return
		}
		if blocked {
			return
		}

		edges := graph.EdgesFrom(node.ID)
		if len(edges) == 0 {
			p.logger.Info("flow ended, destroying session", "chat", chatID, "node", node.ID)
			p.sessions.Delete(chatID)
			metrics.SessionsEnded.Inc()
			return
		}

		nodeID = edges[0].Target
		p.sessions.Advance(chatID, nodeID)
	}
}

// process performs a single node's side effects. It returns blocked =
// true for nodes that await external input.
func (p *Processor) process(ctx context.Context, chatID string, node domain.Node) (blocked bool, err error) {
	switch node.Type {
	case domain.NodeStart:
		return false, nil

	case domain.NodeContent:
		text := node.Label()
		if text == "" {
			text = defaultNodeText
		}
		p.showTyping(ctx, chatID, typingTimeFor(text))
		if err := p.transport.SendText(ctx, chatID, text); err != nil {
			return false, fmt.Errorf("send content: %w", err)
		}
		return false, nil

	case domain.NodeMenu:
		return true, p.presentMenu(ctx, chatID, node)

	case domain.NodeDelay:
		p.wait(ctx, time.Duration(node.DelaySeconds())*time.Second)
		return false, nil

	case domain.NodeAudio:
		if node.MediaURI() != "" {
			p.showRecording(ctx, chatID, recordingTime)
			_ = p.media.DeliverVoice(ctx, chatID, node)
		}
		return false, nil

	case domain.NodeImage, domain.NodeVideo, domain.NodeDocument:
		if node.MediaURI() != "" {
			p.showTyping(ctx, chatID, mediaTypingTime)
			_ = p.media.Deliver(ctx, chatID, node)
		}
		return false, nil
	}

	p.logger.Warn("unrecognized node type", "chat", chatID, "node", node.ID, "type", node.Type)
	return false, nil
}

// presentMenu shows the options either as a structured poll (bounded
// send timeout, text-list fallback) or directly as a numbered list.
func (p *Processor) presentMenu(ctx context.Context, chatID string, node domain.Node) error {
	menu := node.Menu()
	p.showTyping(ctx, chatID, menuTypingTime)

	if menu.UsePoll && len(menu.Options) >= 2 {
		labels := make([]string, len(menu.Options))
		for i, opt := range menu.Options {
			labels[i] = opt.Label
		}

		pollCtx, cancel := context.WithTimeout(ctx, pollSendTimeout)
		err := p.transport.SendPoll(pollCtx, chatID, menuPrompt, labels)
		cancel()
		if err == nil {
			return nil
		}
		p.logger.Error("poll send failed, falling back to text list", "chat", chatID, "err", err)
	}

	return p.sendOptionList(ctx, chatID, menu.Options)
}

// sendOptionList sends the numbered plain-text rendition of a menu.
func (p *Processor) sendOptionList(ctx context.Context, chatID string, options []domain.MenuOption) error {
	var b strings.Builder
	b.WriteString(menuPrompt + "\n\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt.Label)
	}
	if err := p.transport.SendText(ctx, chatID, b.String()); err != nil {
		return fmt.Errorf("send option list: %w", err)
	}
	return nil
}

// RepresentMenu re-issues the retry prompt and the menu after a reply
// failed to resolve. The caller must hold the chat's lock.
func (p *Processor) RepresentMenu(ctx context.Context, chatID string, node domain.Node) {
	p.showTyping(ctx, chatID, typingMin)
	if err := p.transport.SendText(ctx, chatID, "Opção inválida. Por favor, tente novamente."); err != nil {
		p.logger.Error("failed to send retry prompt", "chat", chatID, "err", err)
	}
	p.Run(ctx, chatID, node.ID)
}

// recover handles a node-level failure. Menu nodes get a minimal
// plain-text option list so the conversation is never left hanging;
// everything else is only logged.
func (p *Processor) recover(ctx context.Context, chatID string, node domain.Node, cause error) {
	p.logger.Error("error processing node", "chat", chatID, "node", node.ID, "type", node.Type, "err", cause)

	if node.Type != domain.NodeMenu {
		return
	}

	var b strings.Builder
	b.WriteString(menuRecoveryHint + "\n")
	for _, opt := range node.Menu().Options {
		fmt.Fprintf(&b, "- %s\n", opt.Label)
	}
	if err := p.transport.SendText(ctx, chatID, b.String()); err != nil {
		p.logger.Error("failed to send menu recovery prompt", "chat", chatID, "err", err)
	}
}

// showTyping raises typing presence for the duration, then clears it.
// Best effort: presence failures never fail the node.
func (p *Processor) showTyping(ctx context.Context, chatID string, d time.Duration) {
	if err := p.transport.SetTyping(ctx, chatID); err != nil {
		p.logger.Debug("typing presence failed", "chat", chatID, "err", err)
		return
	}
	p.wait(ctx, d)
	if err := p.transport.ClearPresence(ctx, chatID); err != nil {
		p.logger.Debug("clear presence failed", "chat", chatID, "err", err)
	}
}

// showRecording raises recording presence for the duration, then
// clears it.
func (p *Processor) showRecording(ctx context.Context, chatID string, d time.Duration) {
	if err := p.transport.SetRecording(ctx, chatID); err != nil {
		p.logger.Debug("recording presence failed", "chat", chatID, "err", err)
		return
	}
	p.wait(ctx, d)
	if err := p.transport.ClearPresence(ctx, chatID); err != nil {
		p.logger.Debug("clear presence failed", "chat", chatID, "err", err)
	}
}

func typingTimeFor(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * typingPerRune
	if d < typingMin {
		return typingMin
	}
	if d > typingMax {
		return typingMax
	}
	return d
}
