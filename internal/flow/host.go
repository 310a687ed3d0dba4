// Package flow owns the currently active conversation graph.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

// Host holds exactly one active graph at a time behind an atomic
// pointer. Publishing a new flow is a single pointer swap: in-flight
// sessions keep their node ids and are detected as stale (node missing)
// on their next event, then reset, rather than crashing.
type Host struct {
	store  ports.GraphStore
	logger *slog.Logger
	active atomic.Pointer[domain.Graph]
}

// NewHost creates a host with no graph loaded.
func NewHost(store ports.GraphStore, logger *slog.Logger) *Host {
	return &Host{
		store:  store,
		logger: logger,
	}
}

// Load fetches the latest active graph from the store. A missing graph
// is not an error at startup; the dispatcher no-ops until one is
// published.
func (h *Host) Load(ctx context.Context) error {
	g, err := h.store.LoadActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveGraph) {
			h.logger.Warn("no active flow found in store")
			return nil
		}
		return fmt.Errorf("failed to load active flow: %w", err)
	}
	h.active.Store(g)
	h.logger.Info("flow loaded", "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Replace atomically swaps the in-memory graph and persists it
// wholesale. The swap happens first so the new flow takes effect even
// when persistence fails; the error is still returned for the caller
// to surface.
func (h *Host) Replace(ctx context.Context, g *domain.Graph) error {
	h.active.Store(g)
	if err := h.store.Save(ctx, g); err != nil {
		h.logger.Error("failed to persist flow", "err", err)
		return fmt.Errorf("failed to persist flow: %w", err)
	}
	h.logger.Info("flow replaced", "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Current returns the active graph snapshot, or nil when none is
// loaded. Callers must treat the graph as immutable.
func (h *Host) Current() *domain.Graph {
	return h.active.Load()
}
