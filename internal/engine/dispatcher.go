package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/zapflowhq/zapflow/internal/flow"
	"github.com/zapflowhq/zapflow/internal/guard"
	"github.com/zapflowhq/zapflow/internal/metrics"
	"github.com/zapflowhq/zapflow/internal/session"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

const (
	// DedupWindow is how long a processed message id is remembered.
	DedupWindow = 60 * time.Second
	// StartLockWindow serializes racing duplicate first-contact events
	// while a session is being created.
	StartLockWindow = 2 * time.Second
	// DefaultCooldown is the quiet period required before a chat with
	// no live session may re-trigger the flow.
	DefaultCooldown = 4 * time.Hour

	aiUnavailableReply = "Desculpe, estou com uma instabilidade momentânea. Tente novamente em alguns instantes."
)

// Dispatcher is the entry point for every inbound conversational event.
// It owns the guard state (dedup set, session-start locks) and the lead
// bookkeeping, and routes surviving events into the Processor or the
// option resolver.
type Dispatcher struct {
	host      *flow.Host
	sessions  *session.Registry
	leads     ports.LeadStore
	processor *Processor
	transport ports.Transport
	logger    *slog.Logger

	dedup      *guard.Set
	startLocks *guard.Set
	ignored    map[string]struct{}
	cooldown   time.Duration
	now        func() time.Time

	// Optional collaborators. Nil disables the respective policy hook.
	responder     ports.Responder
	extractor     ports.ReceiptExtractor
	startKeywords []string
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCooldown overrides the re-trigger quiet period.
func WithCooldown(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.cooldown = d
	}
}

// WithIgnoredTypes overrides the protocol-noise event types to drop.
func WithIgnoredTypes(types []string) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.ignored = make(map[string]struct{}, len(types))
		for _, t := range types {
			dp.ignored[t] = struct{}{}
		}
	}
}

// WithResponder wires the AI fallback collaborator.
func WithResponder(r ports.Responder) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.responder = r
	}
}

// WithReceiptExtractor wires the document extraction collaborator.
func WithReceiptExtractor(e ports.ReceiptExtractor) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.extractor = e
	}
}

// WithStartKeywords restricts flow starts for known leads to messages
// matching one of the keywords; other messages go to the AI responder.
// An empty set (the default) starts the flow on any first message.
func WithStartKeywords(keywords []string) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.startKeywords = keywords
	}
}

// WithClock injects the clock used for cooldown checks (tests).
func WithClock(now func() time.Time) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.now = now
	}
}

// WithGuardSets injects the dedup and start-lock sets (tests use fake
// clocks).
func WithGuardSets(dedup, startLocks *guard.Set) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.dedup = dedup
		dp.startLocks = startLocks
	}
}

// NewDispatcher creates the inbound dispatcher.
func NewDispatcher(host *flow.Host, sessions *session.Registry, leads ports.LeadStore, processor *Processor, transport ports.Transport, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		host:       host,
		sessions:   sessions,
		leads:      leads,
		processor:  processor,
		transport:  transport,
		logger:     logger,
		dedup:      guard.NewSet(DedupWindow),
		startLocks: guard.NewSet(StartLockWindow),
		cooldown:   DefaultCooldown,
		now:        time.Now,
	}
	d.ignored = make(map[string]struct{}, len(domain.DefaultIgnoredEventTypes))
	for _, t := range domain.DefaultIgnoredEventTypes {
		d.ignored[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartSweeping runs the guard sets' eviction sweeps until ctx is done.
func (d *Dispatcher) StartSweeping(ctx context.Context) {
	d.dedup.StartSweeping(ctx, DedupWindow)
	d.startLocks.StartSweeping(ctx, StartLockWindow)
}

// HandleEvent processes one inbound event through the guard chain.
// Each guard is a hard gate: failing it drops the event with a log
// line, never an error to the transport.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev domain.InboundEvent) {
	if d.host.Current() == nil {
		d.logger.Warn("no flow loaded, dropping event", "chat", ev.ChatID)
		metrics.EventsTotal.WithLabelValues("no_flow").Inc()
		return
	}

	if ev.MessageID != "" && !d.dedup.TryAdd(ev.MessageID) {
		d.logger.Info("ignoring duplicate message", "chat", ev.ChatID, "message", ev.MessageID)
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	if _, drop := d.ignored[ev.Type]; drop {
		d.logger.Info("ignoring system message type", "chat", ev.ChatID, "type", ev.Type)
		metrics.EventsTotal.WithLabelValues("ignored_type").Inc()
		return
	}

	d.sessions.WithLock(ev.ChatID, func() {
		d.handleLocked(ctx, ev)
	})
}

// handleLocked runs the lead bookkeeping and routing under the chat's
// lock, which is what guarantees within-chat ordering.
func (d *Dispatcher) handleLocked(ctx context.Context, ev domain.InboundEvent) {
	now := d.now()
	_, hasSession := d.sessions.Get(ev.ChatID)

	lead, err := d.leads.FindByChat(ctx, ev.ChatID)
	isNewLead := false
	switch {
	case err == nil:
		if lead.Status == domain.LeadCompleted {
			d.logger.Info("ignoring message from completed lead", "chat", ev.ChatID)
			metrics.EventsTotal.WithLabelValues("completed").Inc()
			return
		}
		if !hasSession && now.Sub(lead.LastInteraction) < d.cooldown {
			d.logger.Info("cooldown active, ignoring message", "chat", ev.ChatID)
			metrics.EventsTotal.WithLabelValues("cooldown").Inc()
			return
		}
		lead.LastInteraction = now
		lead.LastMessage = ev.Body
		lead.Status = domain.LeadInProgress
	case errors.Is(err, domain.ErrLeadNotFound):
		lead = domain.NewLead(ev.ChatID, ev.Body, now)
		isNewLead = true
	default:
		d.logger.Error("failed to look up lead", "chat", ev.ChatID, "err", err)
		metrics.EventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	if err := d.leads.Upsert(ctx, lead); err != nil {
		d.logger.Error("failed to persist lead", "chat", ev.ChatID, "err", err)
		metrics.EventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	// Inbound receipts short-circuit normal dispatch.
	if d.tryExtractReceipt(ctx, ev) {
		metrics.EventsTotal.WithLabelValues("processed").Inc()
		return
	}

	if !hasSession {
		// Policy hook: with start keywords configured, a known lead's
		// non-keyword message gets an AI reply instead of the flow.
		if !isNewLead && d.shouldAnswerWithAI(ev) {
			d.answerWithAI(ctx, ev)
			metrics.EventsTotal.WithLabelValues("processed").Inc()
			return
		}
		d.startSession(ctx, ev.ChatID)
		metrics.EventsTotal.WithLabelValues("processed").Inc()
		return
	}

	d.routeToSession(ctx, ev)
	metrics.EventsTotal.WithLabelValues("processed").Inc()
}

// startSession creates a session at the start node under the
// session-start lock, serializing racing duplicate first contacts.
func (d *Dispatcher) startSession(ctx context.Context, chatID string) {
	if !d.startLocks.TryAdd(chatID) {
		d.logger.Info("session start locked, ignoring concurrent first contact", "chat", chatID)
		metrics.EventsTotal.WithLabelValues("locked").Inc()
		return
	}

	graph := d.host.Current()
	start, ok := graph.StartNode()
	if !ok {
		// Give the lock back so a corrected flow can serve this chat's
		// next message right away.
		d.startLocks.Remove(chatID)
		d.logger.Error("active flow has no start node", "chat", chatID)
		return
	}

	d.logger.Info("starting flow", "chat", chatID)
	d.sessions.Put(domain.NewSession(chatID, start.ID))
	metrics.SessionsStarted.Inc()
	d.processor.Run(ctx, chatID, start.ID)
}

// routeToSession resolves the event against the session's current node.
func (d *Dispatcher) routeToSession(ctx context.Context, ev domain.InboundEvent) {
	graph := d.host.Current()
	sess, _ := d.sessions.Get(ev.ChatID)

	node, ok := graph.NodeByID(sess.CurrentNodeID)
	if !ok {
		// The flow was republished without this node. Reset, don't
		// crash: restart from the new graph's start node.
		d.logger.Info("session node vanished after flow publish, restarting",
			"chat", ev.ChatID, "node", sess.CurrentNodeID)
		d.sessions.Delete(ev.ChatID)
		d.startSession(ctx, ev.ChatID)
		return
	}

	edges := graph.EdgesFrom(node.ID)
	if len(edges) == 0 {
		d.logger.Info("session parked on terminal node, destroying", "chat", ev.ChatID, "node", node.ID)
		d.sessions.Delete(ev.ChatID)
		metrics.SessionsEnded.Inc()
		return
	}

	if node.Type != domain.NodeMenu {
		// Mid auto-advance or mid-delivery; free-form input is not
		// expected here.
		d.logger.Info("ignoring message while session is busy",
			"chat", ev.ChatID, "node", node.ID, "type", node.Type)
		return
	}

	options := node.Menu().Options
	var optionID string
	var matched bool
	if ev.IsVote() {
		optionID, matched = resolveVote(options, ev.SelectedOption)
	} else {
		optionID, matched = resolveText(options, ev.Body)
	}

	if matched {
		if target, ok := edgeTarget(edges, optionID); ok {
			d.sessions.Advance(ev.ChatID, target)
			d.processor.Run(ctx, ev.ChatID, target)
			return
		}
		// Matched option with no wired edge counts as no match.
		d.logger.Warn("matched option has no edge", "chat", ev.ChatID, "node", node.ID, "option", optionID)
	}

	// Votes never re-prompt; free text gets one retry prompt.
	if !ev.IsVote() {
		d.processor.RepresentMenu(ctx, ev.ChatID, node)
	}
}

// HandleVote processes a poll vote delivered out-of-band from the
// message stream. Unresolvable votes are silently ignored.
func (d *Dispatcher) HandleVote(ctx context.Context, vote domain.PollVote) {
	if d.host.Current() == nil || len(vote.Selected) == 0 {
		return
	}

	d.sessions.WithLock(vote.Voter, func() {
		graph := d.host.Current()
		sess, ok := d.sessions.Get(vote.Voter)
		if !ok {
			return
		}

		node, ok := graph.NodeByID(sess.CurrentNodeID)
		if !ok || node.Type != domain.NodeMenu {
			return
		}

		optionID, matched := resolveVote(node.Menu().Options, vote.Selected[0])
		if !matched {
			d.logger.Info("vote did not match any option", "chat", vote.Voter)
			return
		}

		if target, ok := edgeTarget(graph.EdgesFrom(node.ID), optionID); ok {
			d.logger.Info("advancing flow on vote", "chat", vote.Voter, "node", target)
			d.sessions.Advance(vote.Voter, target)
			d.processor.Run(ctx, vote.Voter, target)
		}
	})
}

// TriggerFlow manually starts (or restarts) the flow for a chat,
// bypassing the guard chain. Used by the operator surface.
func (d *Dispatcher) TriggerFlow(ctx context.Context, chatID string) error {
	graph := d.host.Current()
	if graph == nil {
		return domain.ErrNoActiveGraph
	}
	start, ok := graph.StartNode()
	if !ok {
		return domain.ErrNoStartNode
	}

	d.sessions.WithLock(chatID, func() {
		d.logger.Info("manually triggering flow", "chat", chatID)
		d.sessions.Put(domain.NewSession(chatID, start.ID))
		metrics.SessionsStarted.Inc()
		d.processor.Run(ctx, chatID, start.ID)
	})
	return nil
}

// tryExtractReceipt runs the document extraction collaborator for
// inbound PDF attachments. Returns true when the event was consumed.
func (d *Dispatcher) tryExtractReceipt(ctx context.Context, ev domain.InboundEvent) bool {
	if d.extractor == nil || ev.Media == nil || ev.Media.MimeType != "application/pdf" {
		return false
	}

	receipt, err := d.extractor.Extract(ctx, ev.Media.Data)
	if err != nil || !receipt.IsValid {
		d.logger.Warn("receipt extraction failed", "chat", ev.ChatID, "err", err)
		if err := d.transport.SendText(ctx, ev.ChatID, "Não consegui ler o comprovante. Pode enviar novamente?"); err != nil {
			d.logger.Error("failed to send receipt reply", "chat", ev.ChatID, "err", err)
		}
		return true
	}

	d.logger.Info("receipt extracted", "chat", ev.ChatID, "value", receipt.Value, "date", receipt.Date)
	if err := d.transport.SendText(ctx, ev.ChatID, "Comprovante recebido! Obrigado. ✅"); err != nil {
		d.logger.Error("failed to send receipt reply", "chat", ev.ChatID, "err", err)
	}
	return true
}

func (d *Dispatcher) shouldAnswerWithAI(ev domain.InboundEvent) bool {
	if d.responder == nil || len(d.startKeywords) == 0 || ev.IsVote() {
		return false
	}
	body := strings.ToLower(strings.TrimSpace(ev.Body))
	return !slices.ContainsFunc(d.startKeywords, func(k string) bool {
		return strings.EqualFold(strings.TrimSpace(k), body)
	})
}

func (d *Dispatcher) answerWithAI(ctx context.Context, ev domain.InboundEvent) {
	reply, err := d.responder.Reply(ctx, ev.ChatID, ev.Body, nil)
	if err != nil {
		d.logger.Error("ai responder failed", "chat", ev.ChatID, "err", err)
		reply = aiUnavailableReply
	}
	if err := d.transport.SendText(ctx, ev.ChatID, reply); err != nil {
		d.logger.Error("failed to send ai reply", "chat", ev.ChatID, "err", err)
	}
}

func edgeTarget(edges []domain.Edge, optionID string) (string, bool) {
	for _, e := range edges {
		if e.SourceHandle == optionID {
			return e.Target, true
		}
	}
	return "", false
}
