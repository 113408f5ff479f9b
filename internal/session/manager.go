package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phonio-ai/phonio/internal/brain"
	"github.com/phonio-ai/phonio/internal/callstore"
	"github.com/phonio-ai/phonio/internal/carrier"
	"github.com/phonio-ai/phonio/internal/config"
	"github.com/phonio-ai/phonio/internal/executor"
	"github.com/phonio-ai/phonio/internal/notify"
	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/pkg/provider/s2s"
	"github.com/phonio-ai/phonio/pkg/provider/stt"
)

// DefaultInboundPrompt is used when an inbound call arrives without a
// matching pending call or a prompt parameter.
const DefaultInboundPrompt = "Answer the call politely, find out what the caller needs, and help with any commands they ask for."

// DefaultOutboundPrompt is used when an outbound call is placed without a
// task prompt.
const DefaultOutboundPrompt = "Have a natural conversation and help the other party with whatever they need."

// Dialer places and tears down carrier calls. carrier.RESTClient satisfies it.
type Dialer interface {
	Dial(ctx context.Context, req carrier.DialRequest) (string, error)
	Hangup(ctx context.Context, callSID string) error
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Model opens realtime sessions for calls.
	Model s2s.Provider

	// Voice is the synthesised voice passed to the model.
	Voice string

	// Instructions is the persona system prompt shared by all calls.
	Instructions string

	// Classifier decides conversation vs. action per user turn.
	Classifier *brain.Classifier

	// Executor receives actionable utterances. May be nil.
	Executor executor.Executor

	// ExecutorTimeout bounds one dispatch. Zero uses the brain default.
	ExecutorTimeout time.Duration

	// Transcriber, when non-nil, replaces the model's built-in caller
	// transcription with external batch STT.
	Transcriber stt.Transcriber

	// ExternalSTT tunes the external transcription path.
	ExternalSTT config.ExternalSTTConfig

	// Bridge tunes queue and staging behavior.
	Bridge config.BridgeConfig

	// Dialer places outbound calls. Nil disables StartOutbound.
	Dialer Dialer

	// FromNumber is the E.164 caller ID for outbound dials.
	FromNumber string

	// VoiceWebhookURL and StatusWebhookURL are the public callback URLs
	// handed to the carrier when dialing out.
	VoiceWebhookURL  string
	StatusWebhookURL string

	// Store persists terminal call records. May be nil.
	Store callstore.Store

	// Notifier receives one summary per finished call. May be nil.
	Notifier notify.Notifier
}

// call is the manager's mutable record for one session.
type call struct {
	CallSession
	runner    *runner
	finalized bool
}

// Manager owns every call from creation to its terminal status. All exported
// methods are safe for concurrent use.
type Manager struct {
	cfg     ManagerConfig
	metrics *observe.Metrics

	mu        sync.Mutex
	calls     map[string]*call
	byCarrier map[string]string
}

// NewManager creates a Manager. Model and Classifier are required.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Model == nil {
		return nil, errors.New("session: model provider is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("session: classifier is required")
	}
	return &Manager{
		cfg:       cfg,
		metrics:   observe.DefaultMetrics(),
		calls:     make(map[string]*call),
		byCarrier: make(map[string]string),
	}, nil
}

// OutboundCall describes one call to place via [Manager.StartOutbound].
type OutboundCall struct {
	// To is the callee number in E.164 form. Required.
	To string

	// Prompt is the per-call task prompt. Empty uses [DefaultOutboundPrompt].
	Prompt string

	// StatusWebhookURL overrides the configured status callback for this
	// call. Empty uses the manager's default.
	StatusWebhookURL string

	// Metadata is opaque caller-supplied context echoed in API snapshots.
	Metadata map[string]string
}

// StartOutbound places a call to the given number with a per-call task
// prompt. The returned session is in the initiating state; the media stream
// attaches once the callee answers.
func (m *Manager) StartOutbound(ctx context.Context, req OutboundCall) (CallSession, error) {
	if m.cfg.Dialer == nil {
		return CallSession{}, errors.New("session: outbound dialing is not configured")
	}
	if req.To == "" {
		return CallSession{}, errors.New("session: destination number is required")
	}
	if req.Prompt == "" {
		req.Prompt = DefaultOutboundPrompt
	}
	statusURL := m.cfg.StatusWebhookURL
	if req.StatusWebhookURL != "" {
		statusURL = req.StatusWebhookURL
	}

	sid, err := m.cfg.Dialer.Dial(ctx, carrier.DialRequest{
		To:             req.To,
		From:           m.cfg.FromNumber,
		VoiceURL:       m.cfg.VoiceWebhookURL,
		StatusCallback: statusURL,
	})
	if err != nil {
		return CallSession{}, fmt.Errorf("session: dial %s: %w", req.To, err)
	}

	c := &call{CallSession: CallSession{
		CallID:        uuid.NewString(),
		CarrierCallID: sid,
		PeerNumber:    req.To,
		Prompt:        req.Prompt,
		Direction:     DirectionOutbound,
		StartTime:     time.Now().UTC(),
		Status:        StatusInitiating,
		Metadata:      req.Metadata,
	}}

	m.mu.Lock()
	m.calls[c.CallID] = c
	m.byCarrier[sid] = c.CallID
	m.mu.Unlock()
	m.metrics.ActiveCalls.Add(ctx, 1)

	observe.Logger(ctx).Info("outbound call placed",
		"call_id", c.CallID, "carrier_call_id", sid, "to", req.To)
	return c.CallSession, nil
}

// resolve matches a media stream to its pending call, or registers a fresh
// inbound session when no pending call carries the carrier call ID. The
// stream's custom parameters may override the prompt and carry the caller's
// number.
func (m *Manager) resolve(ctx context.Context, meta carrier.StreamMetadata) *call {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byCarrier[meta.CallSID]; ok {
		c := m.calls[id]
		c.Status = StatusInProgress
		return c
	}

	prompt := meta.CustomParams["prompt"]
	if prompt == "" {
		prompt = DefaultInboundPrompt
	}
	c := &call{CallSession: CallSession{
		CallID:        uuid.NewString(),
		CarrierCallID: meta.CallSID,
		PeerNumber:    meta.CustomParams["from"],
		Prompt:        prompt,
		Direction:     DirectionInbound,
		StartTime:     time.Now().UTC(),
		Status:        StatusInProgress,
	}}
	m.calls[c.CallID] = c
	if meta.CallSID != "" {
		m.byCarrier[meta.CallSID] = c.CallID
	}
	m.metrics.ActiveCalls.Add(ctx, 1)

	observe.Logger(ctx).Info("inbound call attached",
		"call_id", c.CallID, "carrier_call_id", meta.CallSID, "from", c.PeerNumber)
	return c
}

// UpdateStatus applies one carrier status webhook. Terminal statuses finalize
// the call: its record is persisted and the operator summary is sent.
func (m *Manager) UpdateStatus(ctx context.Context, carrierCallID, carrierStatus string) {
	status := StatusFromCarrier(carrierStatus)
	if status == "" {
		observe.Logger(ctx).Debug("ignoring unknown carrier status",
			"carrier_call_id", carrierCallID, "status", carrierStatus)
		return
	}

	m.mu.Lock()
	id, ok := m.byCarrier[carrierCallID]
	if !ok {
		m.mu.Unlock()
		observe.Logger(ctx).Debug("status for unknown call",
			"carrier_call_id", carrierCallID, "status", carrierStatus)
		return
	}
	c := m.calls[id]
	if c.finalized {
		m.mu.Unlock()
		return
	}
	if !status.Terminal() {
		c.Status = status
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.finalize(ctx, c, status)
}

// EndCall hangs up and finalizes an active call.
func (m *Manager) EndCall(ctx context.Context, callID string) error {
	m.mu.Lock()
	c, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session: unknown call %s", callID)
	}
	if c.finalized {
		m.mu.Unlock()
		return fmt.Errorf("session: call %s already ended", callID)
	}
	r := c.runner
	sid := c.CarrierCallID
	m.mu.Unlock()

	if m.cfg.Dialer != nil && sid != "" {
		if err := m.cfg.Dialer.Hangup(ctx, sid); err != nil {
			observe.Logger(ctx).Warn("carrier hangup failed",
				"call_id", callID, "err", err)
		}
	}
	if r != nil {
		r.stop()
	}
	m.finalize(ctx, c, StatusCompleted)
	return nil
}

// Get returns a snapshot of one call.
func (m *Manager) Get(callID string) (CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return CallSession{}, false
	}
	return c.CallSession, true
}

// GetByCarrier returns a snapshot of the call registered under a carrier
// call SID. Used by the voice webhook to recover the pending outbound
// prompt before the media stream attaches.
func (m *Manager) GetByCarrier(carrierCallID string) (CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCarrier[carrierCallID]
	if !ok {
		return CallSession{}, false
	}
	return m.calls[id].CallSession, true
}

// ActiveCalls returns snapshots of all non-terminal calls.
func (m *Manager) ActiveCalls() []CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallSession, 0, len(m.calls))
	for _, c := range m.calls {
		if !c.Status.Terminal() {
			out = append(out, c.CallSession)
		}
	}
	return out
}

// finalize moves a call to its terminal status exactly once, persists the
// record, and sends the operator summary.
func (m *Manager) finalize(ctx context.Context, c *call, status Status) {
	m.mu.Lock()
	if c.finalized {
		m.mu.Unlock()
		return
	}
	c.finalized = true
	c.Status = status
	snapshot := c.CallSession
	r := c.runner
	m.mu.Unlock()

	m.metrics.ActiveCalls.Add(ctx, -1)

	var commands []string
	summary := "no actionable commands"
	if r != nil && r.brain != nil {
		r.brain.Wait()
		commands = r.brain.Memory().Commands()
		summary = r.brain.Summary()
	}
	ended := time.Now().UTC()
	duration := ended.Sub(snapshot.StartTime).Round(time.Second)

	if m.cfg.Store != nil {
		rec := callstore.CallRecord{
			CallID:        snapshot.CallID,
			CarrierCallID: snapshot.CarrierCallID,
			PeerNumber:    snapshot.PeerNumber,
			Direction:     string(snapshot.Direction),
			Status:        string(status),
			StartedAt:     snapshot.StartTime,
			EndedAt:       ended,
			Commands:      commands,
			Summary:       summary,
		}
		if err := m.cfg.Store.Record(ctx, rec); err != nil {
			observe.Logger(ctx).Warn("failed to persist call record",
				"call_id", snapshot.CallID, "err", err)
		}
	}

	if m.cfg.Notifier != nil {
		text := fmt.Sprintf("%s call with %s %s after %s: %s",
			snapshot.Direction, peerOrUnknown(snapshot.PeerNumber), status, duration, summary)
		if err := m.cfg.Notifier.Send(ctx, text); err != nil {
			observe.Logger(ctx).Warn("call summary notification failed",
				"call_id", snapshot.CallID, "err", err)
		}
	}

	observe.Logger(ctx).Info("call finished",
		"call_id", snapshot.CallID,
		"status", string(status),
		"duration", duration.String(),
		"commands", len(commands),
	)
}

func peerOrUnknown(peer string) string {
	if peer == "" {
		return "unknown number"
	}
	return peer
}
