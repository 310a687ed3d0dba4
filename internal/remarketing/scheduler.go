// Package remarketing runs the periodic re-engagement job: leads that
// started a conversation but went silent get a single nudge message.
package remarketing

import (
	"context"
	"log/slog"
	"time"

	"github.com/zapflowhq/zapflow/internal/metrics"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

const (
	// The nudge window: silent for at least minSilence, but not so long
	// that the contact has clearly moved on.
	minSilence = 2 * time.Hour
	maxSilence = 24 * time.Hour

	defaultInterval = time.Hour

	nudgeText = "Olá! 👋 Notei que você não concluiu seu atendimento. " +
		"Ficou com alguma dúvida? Posso te ajudar em algo mais?"
)

// Scheduler periodically nudges in-progress leads that went silent.
type Scheduler struct {
	leads     ports.LeadStore
	transport ports.Transport
	logger    *slog.Logger

	interval time.Duration
	now      func() time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a re-engagement scheduler.
func NewScheduler(leads ports.LeadStore, transport ports.Transport, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		leads:     leads,
		transport: transport,
		logger:    logger,
		interval:  defaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("remarketing scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("remarketing scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("remarketing sweep failed", "err", err)
			}
		}
	}
}

// RunOnce performs a single sweep: every in-progress lead whose last
// interaction falls inside the silence window gets one nudge and moves
// to the remarketed status.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now()
	silent, err := s.leads.ListSilent(ctx, now.Add(-maxSilence), now.Add(-minSilence))
	if err != nil {
		return err
	}
	if len(silent) == 0 {
		return nil
	}

	s.logger.Info("nudging silent leads", "count", len(silent))
	for _, lead := range silent {
		if !s.transport.Ready() {
			s.logger.Warn("transport not ready, deferring remaining nudges")
			return nil
		}
		if err := s.transport.SendText(ctx, lead.ChatID, nudgeText); err != nil {
			// Leave the lead in progress: a failed nudge should be
			// retried on the next sweep while it is still in window.
			s.logger.Error("failed to nudge lead", "chat", lead.ChatID, "err", err)
			continue
		}

		if _, err := s.leads.SetStatus(ctx, lead.ChatID, domain.LeadRemarketed); err != nil {
			s.logger.Error("failed to mark lead remarketed", "chat", lead.ChatID, "err", err)
			continue
		}
		metrics.NudgesSent.Inc()
		s.logger.Info("lead nudged", "chat", lead.ChatID)
	}
	return nil
}
