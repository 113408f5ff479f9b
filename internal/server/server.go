// Package server assembles the HTTP surface: carrier webhooks, the media
// stream WebSocket, the call control API, and the operational endpoints.
//
// All handlers hang off an [AppContext] so that the full dependency graph is
// visible at the wiring site; the package keeps no global state.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phonio-ai/phonio/internal/carrier"
	"github.com/phonio-ai/phonio/internal/config"
	"github.com/phonio-ai/phonio/internal/health"
	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/internal/session"
)

// AppContext carries the dependencies the HTTP handlers need.
type AppContext struct {
	// Manager owns all call sessions. Required.
	Manager *session.Manager

	// Health serves /healthz and /readyz. A checker-less handler is used
	// when nil.
	Health *health.Handler

	// Metrics backs the request middleware. Defaults to the shared set.
	Metrics *observe.Metrics

	// Server supplies the public host and the webhook/stream paths.
	Server config.ServerConfig
}

// Server is the assembled HTTP surface. Use [Server.Handler] with an
// http.Server.
type Server struct {
	app     AppContext
	handler http.Handler
}

// New builds the route table. The webhook and media-stream paths come from
// the server config, so they match what the carrier was told to call.
func New(app AppContext) (*Server, error) {
	if app.Manager == nil {
		return nil, errors.New("server: session manager is required")
	}
	if app.Health == nil {
		app.Health = health.New()
	}
	if app.Metrics == nil {
		app.Metrics = observe.DefaultMetrics()
	}
	if app.Server.WebhookPath == "" || app.Server.WSPath == "" {
		return nil, errors.New("server: webhook and media-stream paths are required")
	}

	s := &Server{app: app}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+app.Server.WebhookPath, s.handleVoiceWebhook)
	mux.HandleFunc("POST /carrier/status", s.handleStatusWebhook)
	mux.HandleFunc("GET "+app.Server.WSPath, app.Manager.ServeMediaStream)
	mux.HandleFunc("POST /api/call", s.handleStartCall)
	mux.HandleFunc("GET /api/calls", s.handleListCalls)
	mux.HandleFunc("POST /api/calls/{id}/end", s.handleEndCall)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	app.Health.Register(mux)

	s.handler = observe.Middleware(app.Metrics)(mux)
	return s, nil
}

// Handler returns the full route table wrapped in the tracing and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// streamURL is the wss:// endpoint handed to the carrier in TwiML.
func (s *Server) streamURL() string {
	return "wss://" + s.app.Server.PublicHost + s.app.Server.WSPath
}

// handleVoiceWebhook answers the carrier's voice webhook with a TwiML
// document that connects the call to the media-stream WebSocket. The call
// SID, the caller's number, and (for pending outbound calls) the task prompt
// travel along as custom parameters so the stream start event can attribute
// the call.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook form")
		return
	}
	if s.app.Server.PublicHost == "" {
		observe.Logger(r.Context()).Error("voice webhook without a configured public host")
		writeError(w, http.StatusInternalServerError, "server is not publicly reachable")
		return
	}

	callSID := r.PostFormValue("CallSid")

	var params []carrier.TwiMLParameter
	if callSID != "" {
		params = append(params, carrier.TwiMLParameter{Name: "call_sid", Value: callSID})
	}
	if from := r.PostFormValue("From"); from != "" {
		params = append(params, carrier.TwiMLParameter{Name: "from", Value: from})
	}
	if sess, ok := s.app.Manager.GetByCarrier(callSID); ok && sess.Prompt != "" {
		params = append(params, carrier.TwiMLParameter{Name: "prompt", Value: sess.Prompt})
	}

	doc, err := carrier.ConnectStreamTwiML(s.streamURL(), params...)
	if err != nil {
		observe.Logger(r.Context()).Error("twiml render failed", "err", err)
		writeError(w, http.StatusInternalServerError, "twiml render failed")
		return
	}

	observe.Logger(r.Context()).Info("voice webhook answered",
		"carrier_call_id", callSID,
		"from", r.PostFormValue("From"),
	)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// handleStatusWebhook applies one carrier status callback to the session it
// belongs to. The carrier retries on non-2xx, so unknown calls still get 204.
func (s *Server) handleStatusWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook form")
		return
	}
	s.app.Manager.UpdateStatus(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("CallStatus"))
	w.WriteHeader(http.StatusOK)
}

// startCallRequest is the body of POST /api/call.
type startCallRequest struct {
	To         string            `json:"to"`
	Prompt     string            `json:"prompt"`
	WebhookURL string            `json:"webhook_url"`
	Metadata   map[string]string `json:"metadata"`
}

// callResponse is the API view of one call session.
type callResponse struct {
	CallID        string            `json:"call_id"`
	CarrierCallID string            `json:"carrier_call_id,omitempty"`
	PeerNumber    string            `json:"to_number,omitempty"`
	Prompt        string            `json:"prompt,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Direction     string            `json:"direction"`
	Status        string            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
}

func toCallResponse(c session.CallSession) callResponse {
	return callResponse{
		CallID:        c.CallID,
		CarrierCallID: c.CarrierCallID,
		PeerNumber:    c.PeerNumber,
		Prompt:        c.Prompt,
		Metadata:      c.Metadata,
		Direction:     string(c.Direction),
		Status:        string(c.Status),
		StartedAt:     c.StartTime,
	}
}

// handleStartCall places an outbound call with a per-call task prompt.
func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	sess, err := s.app.Manager.StartOutbound(r.Context(), session.OutboundCall{
		To:               req.To,
		Prompt:           req.Prompt,
		StatusWebhookURL: req.WebhookURL,
		Metadata:         req.Metadata,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("outbound call failed", "to", req.To, "err", err)
		writeError(w, http.StatusBadGateway, "call could not be placed")
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Success bool `json:"success"`
		callResponse
	}{Success: true, callResponse: toCallResponse(sess)})
}

// handleListCalls lists all non-terminal calls, oldest first.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	active := s.app.Manager.ActiveCalls()
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime.Before(active[j].StartTime)
	})

	calls := make([]callResponse, 0, len(active))
	for _, c := range active {
		calls = append(calls, toCallResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls, "count": len(calls)})
}

// handleEndCall hangs up one active call.
func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.app.Manager.EndCall(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "no active call with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "call_id": id})
}

// handleHealth is the coarse status endpoint used by dashboards; the
// liveness and readiness probes live at /healthz and /readyz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": len(s.app.Manager.ActiveCalls()),
	})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
