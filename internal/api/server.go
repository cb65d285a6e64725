// ABOUTME: HTTP server exposing coordinator status, recommendations and manual actions.
// ABOUTME: Host events can be injected onto the bus for a named agent or the coordinator.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/bus"
	"github.com/2389/stream-agents/internal/coordinator"
)

// HostSender is the sender id stamped on messages injected over HTTP when
// the request does not name one.
const HostSender = "host"

const shutdownTimeout = 5 * time.Second

// Coordinator is the subset of *coordinator.Coordinator the server reads.
type Coordinator interface {
	State() coordinator.State
	AgentStatus() coordinator.Status
	Recommendations(includeApplied bool) []agent.View
	Agent(id string) (coordinator.Member, bool)
	Manual(ctx context.Context, action string, args map[string]any) (coordinator.CycleReport, error)
	Bus() *bus.Bus
}

// detailer is implemented by agents that expose a kind-specific view.
type detailer interface {
	Details() any
}

// AgentResponse is the JSON response for GET /api/agents/{id}.
type AgentResponse struct {
	agent.Status
	Details any `json:"details,omitempty"`
}

// InjectRequest is the JSON request body for POST /api/agents/{id}/messages.
type InjectRequest struct {
	Sender   string         `json:"sender,omitempty"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// InjectResponse is the JSON response for an accepted injection.
type InjectResponse struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
}

// ActionResponse is the JSON response for POST /api/coordination/{action}.
type ActionResponse struct {
	Action string                  `json:"action"`
	Report coordinator.CycleReport `json:"report"`
	Error  string                  `json:"error,omitempty"`
}

// Server wires the HTTP handlers to a coordinator.
type Server struct {
	coord  Coordinator
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a server for coord. Pass nil logger for default.
func New(coord Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		coord:  coord,
		logger: logger.With("component", "api"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/recommendations", s.handleRecommendations)
	s.mux.HandleFunc("GET /api/agents/{id}", s.handleAgent)
	s.mux.HandleFunc("POST /api/agents/{id}/messages", s.handleInject)
	s.mux.HandleFunc("POST /api/coordination/{action}", s.handleAction)
	s.mux.HandleFunc("GET /report", s.handleReport)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// The serving context is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return <-errCh
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the coordinator is running.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.coord.State()
	if state != coordinator.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "coordinator %s", state)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", s.coord.AgentStatus().AgentCount)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.AgentStatus())
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	includeApplied := false
	if v := r.URL.Query().Get("include_applied"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			sendJSONError(w, http.StatusBadRequest, "include_applied must be a boolean")
			return
		}
		includeApplied = b
	}
	writeJSON(w, http.StatusOK, s.coord.Recommendations(includeApplied))
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	m, ok := s.coord.Agent(r.PathValue("id"))
	if !ok {
		sendJSONError(w, http.StatusNotFound, "agent not found")
		return
	}
	resp := AgentResponse{Status: m.Status()}
	if d, ok := m.(detailer); ok {
		resp.Details = d.Details()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInject publishes a host event on the bus. The recipient must be a
// configured agent, the coordinator, or "all".
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	recipient := r.PathValue("id")
	if recipient != agent.CoordinatorID && recipient != agent.Broadcast {
		if _, ok := s.coord.Agent(recipient); !ok {
			sendJSONError(w, http.StatusNotFound, "agent not found")
			return
		}
	}
	if s.coord.State() != coordinator.StateRunning {
		sendJSONError(w, http.StatusServiceUnavailable, "coordinator not running")
		return
	}

	var req InjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == "" {
		sendJSONError(w, http.StatusBadRequest, "type is required")
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Sender == "" {
		req.Sender = HostSender
	}

	msg := agent.NewMessage(req.Sender, recipient, req.Type, req.Payload, priority)
	s.coord.Bus().Publish(msg)
	s.logger.Info("host event injected", "recipient", recipient, "type", req.Type, "message_id", msg.ID)

	writeJSON(w, http.StatusAccepted, InjectResponse{MessageID: msg.ID, Recipient: recipient})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if id := r.URL.Query().Get("id"); id != "" {
		args["id"] = id
	}

	report, err := s.coord.Manual(r.Context(), action, args)
	resp := ActionResponse{Action: action, Report: report}
	if err != nil {
		s.logger.Warn("manual coordination failed", "action", action, "error", err)
		resp.Error = err.Error()
		writeJSON(w, actionStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func actionStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrUnknownAction), errors.Is(err, coordinator.ErrRecommendationNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrMissingField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parsePriority(s string) (agent.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "medium":
		return agent.PriorityMedium, nil
	case "low":
		return agent.PriorityLow, nil
	case "high":
		return agent.PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
