// Package memory provides in-memory implementations of the Zapflow
// stores, used in development mode and throughout the test suite.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// GraphStore implements ports.GraphStore in memory.
// Safe for concurrent use.
type GraphStore struct {
	mu    sync.RWMutex
	graph *domain.Graph
}

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// LoadActive returns the stored graph.
func (s *GraphStore) LoadActive(ctx context.Context) (*domain.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, domain.ErrNoActiveGraph
	}
	g := *s.graph
	return &g, nil
}

// Save replaces the stored graph wholesale.
func (s *GraphStore) Save(ctx context.Context, g *domain.Graph) error {
	copied := *g
	copied.Active = true
	copied.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = &copied
	return nil
}

// LeadStore implements ports.LeadStore in memory.
// Safe for concurrent use.
type LeadStore struct {
	mu    sync.RWMutex
	leads map[string]domain.Lead
}

// NewLeadStore creates an empty in-memory lead store.
func NewLeadStore() *LeadStore {
	return &LeadStore{leads: make(map[string]domain.Lead)}
}

// FindByChat retrieves a lead by chat identity.
func (s *LeadStore) FindByChat(ctx context.Context, chatID string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[chatID]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	return &lead, nil
}

// Upsert creates or replaces the lead record.
func (s *LeadStore) Upsert(ctx context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ChatID] = *lead
	return nil
}

// SetStatus updates only the status of an existing lead.
func (s *LeadStore) SetStatus(ctx context.Context, chatID string, status domain.LeadStatus) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[chatID]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	lead.Status = status
	s.leads[chatID] = lead
	return &lead, nil
}

// List returns all leads ordered by first interaction.
func (s *LeadStore) List(ctx context.Context) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, lead)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstInteraction.Before(out[j].FirstInteraction)
	})
	return out, nil
}

// ListSilent returns in-progress leads last seen inside (oldest, newest].
func (s *LeadStore) ListSilent(ctx context.Context, oldest, newest time.Time) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Lead
	for _, lead := range s.leads {
		if lead.Status != domain.LeadInProgress {
			continue
		}
		if lead.LastInteraction.After(oldest) && !lead.LastInteraction.After(newest) {
			out = append(out, lead)
		}
	}
	return out, nil
}

// FinancialStore implements ports.FinancialStore in memory.
type FinancialStore struct {
	mu  sync.RWMutex
	fin domain.Financial
}

// NewFinancialStore creates a zeroed in-memory financial store.
func NewFinancialStore() *FinancialStore {
	return &FinancialStore{}
}

// Get returns the aggregate record.
func (s *FinancialStore) Get(ctx context.Context) (domain.Financial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fin, nil
}

// Put replaces the aggregate record.
func (s *FinancialStore) Put(ctx context.Context, f domain.Financial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fin = f
	return nil
}
