package ports

import (
	"context"
	"time"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// GraphStore persists published conversation graphs. The store is
// authoritative on restart and overwritten wholesale on every save;
// there is no partial-update API.
type GraphStore interface {
	// LoadActive retrieves the most recently saved active graph.
	// Returns domain.ErrNoActiveGraph when none exists.
	LoadActive(ctx context.Context) (*domain.Graph, error)

	// Save replaces the active graph.
	Save(ctx context.Context, g *domain.Graph) error
}

// LeadStore persists durable lead records, keyed by chat identity.
type LeadStore interface {
	// FindByChat retrieves a lead. Returns domain.ErrLeadNotFound when
	// the chat has never been seen.
	FindByChat(ctx context.Context, chatID string) (*domain.Lead, error)

	// Upsert creates or replaces the lead record.
	Upsert(ctx context.Context, lead *domain.Lead) error

	// SetStatus updates only the status of an existing lead.
	// Returns domain.ErrLeadNotFound when the lead does not exist.
	SetStatus(ctx context.Context, chatID string, status domain.LeadStatus) (*domain.Lead, error)

	// List returns all leads.
	List(ctx context.Context) ([]domain.Lead, error)

	// ListSilent returns in-progress leads whose last interaction falls
	// inside (oldest, newest]. Used by the re-engagement job.
	ListSilent(ctx context.Context, oldest, newest time.Time) ([]domain.Lead, error)
}

// FinancialStore persists the single aggregate financial record.
type FinancialStore interface {
	Get(ctx context.Context) (domain.Financial, error)
	Put(ctx context.Context, f domain.Financial) error
}
