// Package gemini implements the s2s.Provider interface for Google's Gemini Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Audio is transmitted as base64-encoded PCM chunks. The protocol
// carries no explicit speech-started/stopped events, so Capabilities reports
// ServerVAD false and the bridge infers caller-turn boundaries from
// transcript ordering instead.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/phonio-ai/phonio/pkg/provider/s2s"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	sampleRate = 24000

	// Sliding-window compression keeps long calls inside the context limit.
	compressionTriggerTokens = 25600
	compressionTargetTokens  = 12800
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Gemini Live provider.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		InputSampleRate:      sampleRate,
		OutputSampleRate:     sampleRate,
		ServerVAD:            false,
		MaxSessionDurationMs: 15 * 60 * 1000,
	}
}

// Connect establishes a new Gemini Live session with the given configuration.
// The returned SessionHandle is ready to accept audio immediately after the
// setup message is sent.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:    conn,
		audioCh: make(chan []byte, 64),
		events:  make(chan s2s.Event, 32),
		done:    make(chan struct{}),
		ctx:     sessCtx,
		cancel:  sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	if cfg.InitialPrompt != "" {
		if err := sess.SendText(cfg.InitialPrompt, true); err != nil {
			sess.Close()
			return nil, fmt.Errorf("gemini: initial prompt: %w", err)
		}
	}

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string              `json:"model"`
	GenerationConfig         generationConfig    `json:"generationConfig"`
	SystemInstruction        *systemInstruction  `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *json.RawMessage    `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *json.RawMessage    `json:"outputAudioTranscription,omitempty"`
	ContextWindowCompression *contextCompression `json:"contextWindowCompression,omitempty"`
}

type contextCompression struct {
	TriggerTokens int           `json:"triggerTokens"`
	SlidingWindow slidingWindow `json:"slidingWindow"`
}

type slidingWindow struct {
	TargetTokens int `json:"targetTokens"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn    *websocket.Conn
	audioCh chan []byte
	events  chan s2s.Event

	mu     sync.Mutex
	errVal error
	done   chan struct{}
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(model string, cfg s2s.SessionConfig) error {
	enabled := json.RawMessage(`{}`)
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			InputAudioTranscription:  &enabled,
			OutputAudioTranscription: &enabled,
			ContextWindowCompression: &contextCompression{
				TriggerTokens: compressionTriggerTokens,
				SlidingWindow: slidingWindow{TargetTokens: compressionTargetTokens},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them.
// It owns audioCh and events: it closes both when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		s.handleServerMessage(&msg)
	}
}

func (s *session) handleServerMessage(msg *serverMessage) {
	if msg.Error != nil {
		e := s2s.Event{Kind: s2s.EventError, Message: "unknown error"}
		if msg.Error.Message != "" {
			e.Message = msg.Error.Message
		}
		e.Code = msg.Error.Status
		s.emit(e)
	}
	if msg.ServerContent != nil {
		s.handleServerContent(msg.ServerContent)
	}
}

func (s *session) handleServerContent(sc *serverContent) {
	if sc.Interrupted {
		// The model noticed caller speech and aborted its own playback.
		s.emit(s2s.Event{Kind: s2s.EventUserSpeechStarted})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				audioData, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(audioData) == 0 {
					continue
				}
				select {
				case s.audioCh <- audioData:
				case <-s.ctx.Done():
					return
				}
			}
			if p.Text != "" {
				s.emit(s2s.Event{Kind: s2s.EventAssistantTranscriptDelta, Text: p.Text})
			}
		}
	}

	// Caller speech recognition result. Gemini streams these as deltas; the
	// turn boundary comes from the first assistant fragment that follows.
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		s.emit(s2s.Event{Kind: s2s.EventUserTranscriptDelta, Text: sc.InputTranscription.Text})
	}

	// Text version of the model's audio output.
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		s.emit(s2s.Event{Kind: s2s.EventAssistantTranscriptDelta, Text: sc.OutputTranscription.Text})
	}

	if sc.TurnComplete {
		s.emit(s2s.Event{Kind: s2s.EventResponseDone})
	}
}

func (s *session) emit(e s2s.Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.events)
	})
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers a raw PCM16 chunk (24 kHz mono) to the model.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate), Data: encoded},
			},
		},
	}
	return s.writeJSON(msg)
}

// SendText injects text as a user turn; with endOfTurn true the model speaks
// a response to it.
func (s *session) SendText(text string, endOfTurn bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: endOfTurn,
		},
	}
	return s.writeJSON(msg)
}

// Audio returns the channel on which the model's synthesised audio arrives.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Events returns the channel on which transcript and lifecycle events arrive.
func (s *session) Events() <-chan s2s.Event { return s.events }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Interrupt is a no-op: Gemini Live aborts its own playback when its VAD
// hears the caller, and the protocol has no explicit cancel message.
func (s *session) Interrupt() error {
	return nil
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
