// Package http exposes the operator surface: flow publishing, lead
// inspection, manual triggers, and financial bookkeeping.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapflowhq/zapflow/internal/flow"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

// Trigger manually starts the flow for a chat.
type Trigger interface {
	TriggerFlow(ctx context.Context, chatID string) error
}

// Server is the admin HTTP API.
type Server struct {
	host       *flow.Host
	leads      ports.LeadStore
	financials ports.FinancialStore
	transport  ports.Transport
	trigger    Trigger
	logger     *slog.Logger
}

// NewServer creates the admin API server.
func NewServer(host *flow.Host, leads ports.LeadStore, financials ports.FinancialStore, transport ports.Transport, trigger Trigger, logger *slog.Logger) *Server {
	return &Server{
		host:       host,
		leads:      leads,
		financials: financials,
		transport:  transport,
		trigger:    trigger,
		logger:     logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/ping", s.handlePing)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/flow", s.handleGetFlow)
	r.Post("/api/save-flow", s.handleSaveFlow)
	r.Get("/api/leads", s.handleListLeads)
	r.Post("/api/leads/{chatID}/status", s.handleSetLeadStatus)
	r.Post("/api/trigger-flow", s.handleTriggerFlow)
	r.Get("/api/financials", s.handleGetFinancials)
	r.Post("/api/financials", s.handlePutFinancials)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Pong"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ready":      s.transport.Ready(),
		"flowLoaded": s.host.Current() != nil,
	})
}

func (s *Server) handleGetFlow(w http.ResponseWriter, _ *http.Request) {
	graph := s.host.Current()
	if graph == nil {
		http.Error(w, "no active flow", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleSaveFlow(w http.ResponseWriter, r *http.Request) {
	var graph domain.Graph
	if err := json.NewDecoder(r.Body).Decode(&graph); err != nil {
		http.Error(w, "invalid flow payload", http.StatusBadRequest)
		return
	}
	if len(graph.Nodes) == 0 {
		http.Error(w, "flow has no nodes", http.StatusBadRequest)
		return
	}
	graph.Active = true
	graph.UpdatedAt = time.Now()

	if err := s.host.Replace(r.Context(), &graph); err != nil {
		// The swap already happened; report the persistence failure.
		http.Error(w, "flow activated but not persisted", http.StatusInternalServerError)
		return
	}

	s.logger.Info("flow published", "nodes", len(graph.Nodes), "edges", len(graph.Edges))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.leads.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list leads", "err", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	s.writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleSetLeadStatus(w http.ResponseWriter, r *http.Request) {
	chatID, err := url.PathUnescape(chi.URLParam(r, "chatID"))
	if err != nil || chatID == "" {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}

	var body struct {
		Status domain.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	switch body.Status {
	case domain.LeadInProgress, domain.LeadCompleted, domain.LeadRemarketed:
	default:
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	lead, err := s.leads.SetStatus(r.Context(), chatID, body.Status)
	if errors.Is(err, domain.ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to update lead status", "chat", chatID, "err", err)
		http.Error(w, "failed to update lead", http.StatusInternalServerError)
		return
	}

	s.logger.Info("lead status updated", "chat", chatID, "status", body.Status)
	s.writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleTriggerFlow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID string `json:"chatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChatID == "" {
		http.Error(w, "chatId is required", http.StatusBadRequest)
		return
	}

	if err := s.trigger.TriggerFlow(r.Context(), body.ChatID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNoActiveGraph), errors.Is(err, domain.ErrNoStartNode):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.logger.Error("manual trigger failed", "chat", body.ChatID, "err", err)
			http.Error(w, "trigger failed", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

func (s *Server) handleGetFinancials(w http.ResponseWriter, r *http.Request) {
	f, err := s.financials.Get(r.Context())
	if err != nil {
		s.logger.Error("failed to load financials", "err", err)
		http.Error(w, "failed to load financials", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handlePutFinancials(w http.ResponseWriter, r *http.Request) {
	var f domain.Financial
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.financials.Put(r.Context(), f); err != nil {
		s.logger.Error("failed to save financials", "err", err)
		http.Error(w, "failed to save financials", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}
