// Package redis provides Redis-backed implementations of the Zapflow
// stores. Graphs, leads and the financial summary are stored as JSON
// documents; leads carry a membership-set index for listing.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// Store implements the Zapflow store ports on Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix (default "zapflow:").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store with its own Redis client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "zapflow:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) graphKey() string {
	return s.prefix + "flow:active"
}

func (s *Store) leadKey(chatID string) string {
	return s.prefix + "lead:" + chatID
}

func (s *Store) leadIndexKey() string {
	return s.prefix + "lead:index"
}

func (s *Store) financialKey() string {
	return s.prefix + "financial"
}

// LoadActive retrieves the active graph document.
func (s *Store) LoadActive(ctx context.Context) (*domain.Graph, error) {
	val, err := s.client.Get(ctx, s.graphKey()).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrNoActiveGraph
		}
		return nil, fmt.Errorf("failed to get graph from redis: %w", err)
	}

	var g domain.Graph
	if err := json.Unmarshal([]byte(val), &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &g, nil
}

// Save replaces the active graph document wholesale.
func (s *Store) Save(ctx context.Context, g *domain.Graph) error {
	copied := *g
	copied.Active = true
	copied.UpdatedAt = time.Now()

	data, err := json.Marshal(&copied)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := s.client.Set(ctx, s.graphKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save graph to redis: %w", err)
	}
	return nil
}

// FindByChat retrieves a lead document.
func (s *Store) FindByChat(ctx context.Context, chatID string) (*domain.Lead, error) {
	val, err := s.client.Get(ctx, s.leadKey(chatID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to get lead from redis: %w", err)
	}

	var lead domain.Lead
	if err := json.Unmarshal([]byte(val), &lead); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
	}
	return &lead, nil
}

// Upsert writes the lead document and registers it in the index.
func (s *Store) Upsert(ctx context.Context, lead *domain.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.leadKey(lead.ChatID), data, 0)
	pipe.SAdd(ctx, s.leadIndexKey(), lead.ChatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save lead to redis: %w", err)
	}
	return nil
}

// SetStatus updates only the status of an existing lead.
func (s *Store) SetStatus(ctx context.Context, chatID string, status domain.LeadStatus) (*domain.Lead, error) {
	lead, err := s.FindByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	lead.Status = status
	if err := s.Upsert(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// List returns all indexed leads. Index entries whose document vanished
// are skipped.
func (s *Store) List(ctx context.Context) ([]domain.Lead, error) {
	ids, err := s.client.SMembers(ctx, s.leadIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	leads := make([]domain.Lead, 0, len(ids))
	for _, id := range ids {
		lead, err := s.FindByChat(ctx, id)
		if err != nil {
			if err == domain.ErrLeadNotFound {
				continue
			}
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, nil
}

// ListSilent returns in-progress leads last seen inside (oldest, newest].
func (s *Store) ListSilent(ctx context.Context, oldest, newest time.Time) ([]domain.Lead, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Lead
	for _, lead := range all {
		if lead.Status != domain.LeadInProgress {
			continue
		}
		if lead.LastInteraction.After(oldest) && !lead.LastInteraction.After(newest) {
			out = append(out, lead)
		}
	}
	return out, nil
}

// Get returns the financial summary, zeroed when absent.
func (s *Store) Get(ctx context.Context) (domain.Financial, error) {
	val, err := s.client.Get(ctx, s.financialKey()).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Financial{}, nil
		}
		return domain.Financial{}, fmt.Errorf("failed to get financials from redis: %w", err)
	}

	var fin domain.Financial
	if err := json.Unmarshal([]byte(val), &fin); err != nil {
		return domain.Financial{}, fmt.Errorf("failed to unmarshal financials: %w", err)
	}
	return fin, nil
}

// Put replaces the financial summary.
func (s *Store) Put(ctx context.Context, f domain.Financial) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal financials: %w", err)
	}
	if err := s.client.Set(ctx, s.financialKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save financials to redis: %w", err)
	}
	return nil
}
