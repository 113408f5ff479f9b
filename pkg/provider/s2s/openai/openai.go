// Package openai implements the s2s.Provider interface for OpenAI's Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime API protocol. Audio is
// transmitted as base64-encoded PCM16 chunks. Caller speech boundaries are
// detected server-side (server_vad), so the session surfaces explicit
// speech-started/stopped events.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/phonio-ai/phonio/pkg/provider/s2s"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// Server VAD tuning. Threshold 0.6 rejects most line noise; 200 ms of
	// prefix padding keeps the first syllable; 300 ms of silence ends the
	// caller's turn.
	vadThreshold       = 0.6
	vadPrefixPaddingMs = 200
	vadSilenceMs       = 300

	inputSampleRate  = 16000
	outputSampleRate = 24000
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
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

// Capabilities returns static metadata about the OpenAI Realtime provider.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		InputSampleRate:      inputSampleRate,
		OutputSampleRate:     outputSampleRate,
		ServerVAD:            true,
		MaxSessionDurationMs: 30 * 60 * 1000,
	}
}

// Connect establishes a new Realtime session with the given configuration.
// The returned SessionHandle is ready to accept audio immediately after the
// session.update message is sent.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:    conn,
		audioCh: make(chan []byte, 64),
		events:  make(chan s2s.Event, 32),
		ctx:     sessCtx,
		cancel:  sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg.Voice, cfg.Instructions); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	if cfg.InitialPrompt != "" {
		if err := sess.SendText(cfg.InitialPrompt, true); err != nil {
			sess.Close()
			return nil, fmt.Errorf("openai: initial prompt: %w", err)
		}
	}

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string           `json:"modalities,omitempty"`
	Voice                   string             `json:"voice,omitempty"`
	Instructions            string             `json:"instructions,omitempty"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConf `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionConf `json:"turn_detection,omitempty"`
}

type transcriptionConf struct {
	Model string `json:"model"`
}

type turnDetectionConf struct {
	Type            string  `json:"type"`
	Threshold       float64 `json:"threshold"`
	PrefixPaddingMs int     `json:"prefix_padding_ms"`
	SilenceMs       int     `json:"silence_duration_ms"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverErrorDetail represents the nested error object in a Realtime error
// event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn    *websocket.Conn
	audioCh chan []byte
	events  chan s2s.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event configuring voice,
// instructions, audio formats, input transcription, and server VAD.
func (s *session) sendSessionUpdate(voice, instructions string) error {
	params := sessionParams{
		Modalities:              []string{"audio", "text"},
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &transcriptionConf{Model: "whisper-1"},
		TurnDetection: &turnDetectionConf{
			Type:            "server_vad",
			Threshold:       vadThreshold,
			PrefixPaddingMs: vadPrefixPaddingMs,
			SilenceMs:       vadSilenceMs,
		},
	}
	if voice != "" {
		params.Voice = voice
	}
	if instructions != "" {
		params.Instructions = instructions
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them.
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

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue // skip malformed frames
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		select {
		case s.audioCh <- audioData:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(s2s.Event{Kind: s2s.EventAssistantTranscriptDelta, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(s2s.Event{Kind: s2s.EventUserTranscriptFinal, Text: evt.Transcript})

	case "input_audio_buffer.speech_started":
		s.emit(s2s.Event{Kind: s2s.EventUserSpeechStarted})

	case "input_audio_buffer.speech_stopped":
		s.emit(s2s.Event{Kind: s2s.EventUserSpeechStopped})

	case "response.done":
		s.emit(s2s.Event{Kind: s2s.EventResponseDone})

	case "error":
		e := s2s.Event{Kind: s2s.EventError, Message: "unknown error"}
		if evt.Error != nil {
			e.Code = evt.Error.Code
			if evt.Error.Message != "" {
				e.Message = evt.Error.Message
			}
		}
		s.emit(e)
	}
}

func (s *session) emit(e s2s.Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
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

// SendAudio delivers a raw PCM16 chunk (16 kHz mono) to the model.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: encoded,
	})
}

// SendText injects text as a user conversation item; with endOfTurn it also
// requests a spoken response.
func (s *session) SendText(text string, endOfTurn bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_text", Text: text},
			},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return err
	}
	if !endOfTurn {
		return nil
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
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

// Interrupt sends a response.cancel event to stop the current model response.
func (s *session) Interrupt() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
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

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
