package engine

import (
	"context"
	"time"

	"github.com/zapflowhq/zapflow/internal/flow"
	"github.com/zapflowhq/zapflow/internal/logging"
	"github.com/zapflowhq/zapflow/internal/session"
	"github.com/zapflowhq/zapflow/internal/testutil"
	"github.com/zapflowhq/zapflow/pkg/adapters/memory"
	"github.com/zapflowhq/zapflow/pkg/domain"
)

// menuGraph is the shared fixture:
//
//	start -> greeting -> menu --yes--> confirmed (terminal)
//	                          --no---> declined  (terminal)
func menuGraph() *domain.Graph {
	return &domain.Graph{
		Active: true,
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeStart},
			{ID: "greeting", Type: domain.NodeContent, Data: map[string]any{"label": "Olá!"}},
			{ID: "menu", Type: domain.NodeMenu, Data: map[string]any{
				"options": []map[string]any{
					{"id": "opt-yes", "label": "Sim"},
					{"id": "opt-no", "label": "Não"},
				},
			}},
			{ID: "confirmed", Type: domain.NodeContent, Data: map[string]any{"label": "Legal!"}},
			{ID: "declined", Type: domain.NodeContent, Data: map[string]any{"label": "Tudo bem."}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "greeting"},
			{ID: "e2", Source: "greeting", Target: "menu"},
			{ID: "e3", Source: "menu", Target: "confirmed", SourceHandle: "opt-yes"},
			{ID: "e4", Source: "menu", Target: "declined", SourceHandle: "opt-no"},
		},
	}
}

// fakeMedia records delivery calls without touching disk.
type fakeMedia struct {
	delivered []string
	voiced    []string
}

func (f *fakeMedia) Deliver(_ context.Context, _ string, node domain.Node) error {
	f.delivered = append(f.delivered, node.ID)
	return nil
}

func (f *fakeMedia) DeliverVoice(_ context.Context, _ string, node domain.Node) error {
	f.voiced = append(f.voiced, node.ID)
	return nil
}

func instantWait(_ context.Context, _ time.Duration) {}

type testRig struct {
	host      *flow.Host
	sessions  *session.Registry
	transport *testutil.Transport
	media     *fakeMedia
	processor *Processor
	leads     *memory.LeadStore
}

func newTestRig(graph *domain.Graph, opts ...ProcessorOption) *testRig {
	logger := logging.NewNop()
	store := memory.NewGraphStore()
	host := flow.NewHost(store, logger)
	if graph != nil {
		_ = host.Replace(context.Background(), graph)
	}

	rig := &testRig{
		host:      host,
		sessions:  session.NewRegistry(),
		transport: &testutil.Transport{},
		media:     &fakeMedia{},
		leads:     memory.NewLeadStore(),
	}
	opts = append([]ProcessorOption{WithWait(instantWait)}, opts...)
	rig.processor = NewProcessor(host, rig.sessions, rig.transport, rig.media, logger, opts...)
	return rig
}

func (r *testRig) dispatcher(opts ...DispatcherOption) *Dispatcher {
	return NewDispatcher(r.host, r.sessions, r.leads, r.processor, r.transport, logging.NewNop(), opts...)
}
