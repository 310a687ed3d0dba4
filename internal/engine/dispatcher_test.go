package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowhq/zapflow/internal/guard"
	"github.com/zapflowhq/zapflow/pkg/domain"
)

func countOf(bodies []string, want string) int {
	n := 0
	for _, b := range bodies {
		if b == want {
			n++
		}
	}
	return n
}

func TestFirstContactStartsFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	sess, ok := rig.sessions.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "menu", sess.CurrentNodeID)
	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Olá!"))

	lead, err := rig.leads.FindByChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadInProgress, lead.Status)
	assert.Equal(t, "oi", lead.LastMessage)
}

func TestFirstContactStampsLeadWithDispatcherClock(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	d := rig.dispatcher(WithClock(func() time.Time { return now }))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	lead, err := rig.leads.FindByChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, now, lead.FirstInteraction)
	assert.Equal(t, now, lead.LastInteraction)
}

func TestDuplicateMessageIgnored(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	ev := domain.InboundEvent{ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi"}
	d.HandleEvent(context.Background(), ev)
	d.HandleEvent(context.Background(), ev)

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Olá!"))
}

func TestConcurrentFirstContactsCreateOneSession(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.HandleEvent(context.Background(), domain.InboundEvent{
				ChatID: "chat-1", MessageID: fmt.Sprintf("m%d", i), Type: "chat", Body: "oi",
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, rig.sessions.Len())
	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Olá!"), "the flow starts exactly once")
}

func TestIgnoredEventTypesDropped(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	for _, typ := range []string{"e2e_notification", "call_log", "protocol", "ciphertext"} {
		d.HandleEvent(context.Background(), domain.InboundEvent{
			ChatID: "chat-1", MessageID: "m-" + typ, Type: typ,
		})
	}

	assert.Equal(t, 0, rig.sessions.Len())
	assert.Empty(t, rig.transport.Texts)
}

func TestNoFlowLoadedDropsEvents(t *testing.T) {
	rig := newTestRig(nil)
	d := rig.dispatcher()

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	assert.Empty(t, rig.transport.Texts)
}

func TestCompletedLeadIgnored(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	lead := domain.NewLead("chat-1@c.us", "oi", time.Now())
	lead.Status = domain.LeadCompleted
	require.NoError(t, rig.leads.Upsert(context.Background(), lead))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1@c.us", MessageID: "m1", Type: "chat", Body: "oi de novo",
	})

	assert.Empty(t, rig.transport.Texts)
	assert.Equal(t, 0, rig.sessions.Len())
}

func TestCooldownBlocksRecentLeads(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Now()
	d := rig.dispatcher(WithClock(func() time.Time { return now }))

	lead := domain.NewLead("chat-1", "oi", now)
	lead.LastInteraction = now.Add(-1 * time.Hour)
	require.NoError(t, rig.leads.Upsert(context.Background(), lead))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	assert.Empty(t, rig.transport.Texts, "1h of silence is inside the 4h cooldown")
	assert.Equal(t, 0, rig.sessions.Len())
}

func TestCooldownExpiredRestartsFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Now()
	d := rig.dispatcher(WithClock(func() time.Time { return now }))

	lead := domain.NewLead("chat-1", "oi", now)
	lead.LastInteraction = now.Add(-5 * time.Hour)
	require.NoError(t, rig.leads.Upsert(context.Background(), lead))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "voltei",
	})

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Olá!"))
	assert.Equal(t, 1, rig.sessions.Len())
}

func TestMenuReplyAdvancesFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "Sim",
	})

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Legal!"))
	_, ok := rig.sessions.Get("chat-1")
	assert.False(t, ok, "yes branch ends at a terminal node")
}

func TestMenuReplyOrdinal(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "2",
	})

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Tudo bem."))
}

func TestUnresolvedReplyRepresentsMenu(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "talvez",
	})

	bodies := rig.transport.TextBodies()
	assert.Equal(t, 1, countOf(bodies, "Opção inválida. Por favor, tente novamente."))

	sess, ok := rig.sessions.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "menu", sess.CurrentNodeID)
}

func TestStaleSessionNodeRestartsFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	rig.sessions.Put(domain.NewSession("chat-1", "removed-node"))
	require.NoError(t, rig.leads.Upsert(context.Background(), domain.NewLead("chat-1", "oi", time.Now())))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	sess, ok := rig.sessions.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "menu", sess.CurrentNodeID, "session restarted from the new graph's start")
}

func TestSessionParkedOnTerminalNodeIsDestroyed(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	rig.sessions.Put(domain.NewSession("chat-1", "confirmed"))
	require.NoError(t, rig.leads.Upsert(context.Background(), domain.NewLead("chat-1", "oi", time.Now())))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})

	assert.Equal(t, 0, rig.sessions.Len())
}

func TestVoteAdvancesFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	rig.sessions.Put(domain.NewSession("chat-1", "menu"))
	d.HandleVote(context.Background(), domain.PollVote{Voter: "chat-1", Selected: []string{"Sim"}})

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Legal!"))
}

func TestVoteMismatchNeverReprompts(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	rig.sessions.Put(domain.NewSession("chat-1", "menu"))
	d.HandleVote(context.Background(), domain.PollVote{Voter: "chat-1", Selected: []string{"Talvez"}})

	assert.Empty(t, rig.transport.Texts, "a stale or deselect vote is silent")
	sess, _ := rig.sessions.Get("chat-1")
	assert.Equal(t, "menu", sess.CurrentNodeID)
}

func TestVoteWithoutSessionIgnored(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	d.HandleVote(context.Background(), domain.PollVote{Voter: "chat-1", Selected: []string{"Sim"}})

	assert.Empty(t, rig.transport.Texts)
}

func TestTriggerFlow(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher()

	require.NoError(t, d.TriggerFlow(context.Background(), "chat-1"))

	sess, ok := rig.sessions.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "menu", sess.CurrentNodeID)
}

func TestTriggerFlowWithoutGraph(t *testing.T) {
	rig := newTestRig(nil)
	d := rig.dispatcher()

	assert.ErrorIs(t, d.TriggerFlow(context.Background(), "chat-1"), domain.ErrNoActiveGraph)
}

func TestReceiptShortCircuitsDispatch(t *testing.T) {
	rig := newTestRig(menuGraph())
	d := rig.dispatcher(WithReceiptExtractor(fakeExtractor{receipt: domain.Receipt{
		IsValid: true, Value: "150,00", Date: "01/09/2026",
	}}))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "document",
		Media: &domain.InboundMedia{MimeType: "application/pdf", Data: []byte("%PDF")},
	})

	assert.Equal(t, 0, rig.sessions.Len(), "receipt events never start the flow")
	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Comprovante recebido! Obrigado. ✅"))
}

func TestStartKeywordPolicyRoutesToAI(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Now()
	responder := &fakeResponder{reply: "Posso ajudar!"}
	d := rig.dispatcher(
		WithClock(func() time.Time { return now }),
		WithResponder(responder),
		WithStartKeywords([]string{"menu", "começar"}),
	)

	lead := domain.NewLead("chat-1", "oi", now)
	lead.LastInteraction = now.Add(-5 * time.Hour)
	require.NoError(t, rig.leads.Upsert(context.Background(), lead))

	// Free-form question from a known lead goes to the responder.
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "qual o preço?",
	})
	assert.Equal(t, 0, rig.sessions.Len())
	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Posso ajudar!"))

	// A start keyword triggers the flow once the cooldown passes again.
	now = now.Add(5 * time.Hour)
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "Menu",
	})
	assert.Equal(t, 1, rig.sessions.Len())
}

func TestAIFailureSendsFallbackReply(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Now()
	d := rig.dispatcher(
		WithClock(func() time.Time { return now }),
		WithResponder(&fakeResponder{err: assert.AnError}),
		WithStartKeywords([]string{"menu"}),
	)

	lead := domain.NewLead("chat-1", "oi", now)
	lead.LastInteraction = now.Add(-5 * time.Hour)
	require.NoError(t, rig.leads.Upsert(context.Background(), lead))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "dúvida",
	})

	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), aiUnavailableReply))
}

func TestStartLockExpiresAndAllowsRestart(t *testing.T) {
	rig := newTestRig(menuGraph())
	now := time.Now()
	clock := func() time.Time { return now }
	d := rig.dispatcher(
		WithClock(clock),
		WithGuardSets(
			guard.NewSet(DedupWindow, guard.WithClock(clock)),
			guard.NewSet(StartLockWindow, guard.WithClock(clock)),
		),
	)

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})
	require.Equal(t, 1, rig.sessions.Len())

	// The session walks to the menu and ends via "Sim".
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "Sim",
	})
	require.Equal(t, 0, rig.sessions.Len())

	// After cooldown and lock expiry, a new contact starts fresh.
	now = now.Add(5 * time.Hour)
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m3", Type: "chat", Body: "oi de novo",
	})
	assert.Equal(t, 1, rig.sessions.Len())
	assert.Equal(t, 2, countOf(rig.transport.TextBodies(), "Olá!"))
}

func TestStartLockReleasedWhenFlowHasNoStartNode(t *testing.T) {
	broken := &domain.Graph{
		Active: true,
		Nodes: []domain.Node{
			{ID: "greeting", Type: domain.NodeContent, Data: map[string]any{"label": "Olá!"}},
		},
	}
	rig := newTestRig(broken)
	now := time.Now()
	d := rig.dispatcher(WithClock(func() time.Time { return now }))

	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	})
	require.Equal(t, 0, rig.sessions.Len())

	// A corrected flow is published; the chat's next message starts it
	// without waiting out the lock window.
	require.NoError(t, rig.host.Replace(context.Background(), menuGraph()))
	now = now.Add(5 * time.Hour)
	d.HandleEvent(context.Background(), domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m2", Type: "chat", Body: "oi",
	})

	assert.Equal(t, 1, rig.sessions.Len())
	assert.Equal(t, 1, countOf(rig.transport.TextBodies(), "Olá!"))
}

type fakeExtractor struct {
	receipt domain.Receipt
	err     error
}

func (f fakeExtractor) Extract(_ context.Context, _ []byte) (domain.Receipt, error) {
	return f.receipt, f.err
}

type fakeResponder struct {
	reply string
	err   error
}

func (f *fakeResponder) Reply(_ context.Context, _, _ string, _ []domain.ChatTurn) (string, error) {
	return f.reply, f.err
}
