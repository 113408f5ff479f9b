// Package carrier speaks the telephony carrier's side of a call: the Media
// Streams WebSocket protocol for live audio, the REST API for dialing and
// hangup, and TwiML rendering for webhook responses.
//
// The media stream is an event-framed JSON protocol over a single persistent
// WebSocket. The carrier sends connected/start/media/stop/mark events; we send
// media/clear/mark frames with the stream SID echoed back. Media payloads are
// base64-encoded G.711 μ-law at 8 kHz.
package carrier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// maxPreStartMessages bounds how many frames we tolerate before the start
	// event arrives. Some carriers send connected plus a few keepalives first;
	// anything beyond this is a broken handshake.
	maxPreStartMessages = 50

	// startDeadline bounds how long we wait for the start event.
	startDeadline = 10 * time.Second
)

// StreamMetadata carries the call identifiers delivered in the start event.
// Set once when start arrives; immutable afterwards.
type StreamMetadata struct {
	StreamSID    string
	CallSID      string
	AccountSID   string
	Tracks       []string
	CustomParams map[string]string
}

// Handlers receives inbound stream events. All callbacks are invoked from the
// stream's single read loop, so they never run concurrently with each other.
// Nil callbacks are skipped.
type Handlers struct {
	// OnStart fires once when the start event arrives.
	OnStart func(meta StreamMetadata)

	// OnMedia receives decoded μ-law payload bytes for each media event.
	OnMedia func(payload []byte)

	// OnMark fires when the carrier acknowledges a previously sent mark.
	OnMark func(name string)

	// OnStop fires when the carrier ends the stream.
	OnStop func()
}

// ── Wire frames ────────────────────────────────────────────────────────────────

type inboundFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		AccountSID       string            `json:"accountSid"`
		Tracks           []string          `json:"tracks"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
}

type outboundMediaFrame struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundClearFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

type outboundMarkFrame struct {
	Event     string   `json:"event"`
	StreamSID string   `json:"streamSid"`
	Mark      markName `json:"mark"`
}

type markName struct {
	Name string `json:"name"`
}

// ── Stream ─────────────────────────────────────────────────────────────────────

// Stream is one accepted media-stream connection. Outbound frames are
// serialized through a mutex so concurrent senders cannot interleave writes.
// Until start has been received, all outbound sends are silent no-ops.
type Stream struct {
	conn     *websocket.Conn
	handlers Handlers

	mu      sync.Mutex
	started bool
	meta    StreamMetadata

	closeOnce sync.Once
}

// Accept upgrades the HTTP request to a media-stream WebSocket.
func Accept(w http.ResponseWriter, r *http.Request, handlers Handlers) (*Stream, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Carrier media gateways connect from their own origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, fmt.Errorf("carrier: accept media stream: %w", err)
	}
	return &Stream{conn: conn, handlers: handlers}, nil
}

// Run reads inbound events until the stream stops, the connection drops, or
// ctx is cancelled. It blocks; call it from a dedicated goroutine or as the
// body of the WebSocket handler. A stop event returns nil.
func (s *Stream) Run(ctx context.Context) error {
	if err := s.awaitStart(ctx); err != nil {
		return err
	}

	for {
		var frame inboundFrame
		if err := s.readFrame(ctx, &frame); err != nil {
			if errors.Is(err, errMalformedFrame) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("carrier: read media stream: %w", err)
		}

		switch frame.Event {
		case "media":
			s.dispatchMedia(&frame)
		case "mark":
			if frame.Mark != nil {
				slog.Debug("mark acknowledged", "name", frame.Mark.Name)
				if s.handlers.OnMark != nil {
					s.handlers.OnMark(frame.Mark.Name)
				}
			}
		case "stop":
			if s.handlers.OnStop != nil {
				s.handlers.OnStop()
			}
			return nil
		default:
			slog.Debug("ignoring media stream event", "event", frame.Event)
		}
	}
}

// awaitStart consumes frames until the start event arrives, tolerating up to
// maxPreStartMessages other frames within startDeadline.
func (s *Stream) awaitStart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startDeadline)
	defer cancel()

	for seen := 0; seen < maxPreStartMessages; seen++ {
		var frame inboundFrame
		if err := s.readFrame(ctx, &frame); err != nil {
			if errors.Is(err, errMalformedFrame) {
				continue
			}
			return fmt.Errorf("carrier: awaiting start event: %w", err)
		}

		if frame.Event != "start" {
			continue
		}
		if frame.Start == nil || frame.Start.StreamSID == "" {
			return fmt.Errorf("carrier: start event missing streamSid")
		}

		meta := StreamMetadata{
			StreamSID:    frame.Start.StreamSID,
			CallSID:      frame.Start.CallSID,
			AccountSID:   frame.Start.AccountSID,
			Tracks:       frame.Start.Tracks,
			CustomParams: frame.Start.CustomParameters,
		}

		s.mu.Lock()
		s.started = true
		s.meta = meta
		s.mu.Unlock()

		if s.handlers.OnStart != nil {
			s.handlers.OnStart(meta)
		}
		return nil
	}
	return fmt.Errorf("carrier: no start event within %d messages", maxPreStartMessages)
}

// errMalformedFrame marks a frame that failed to decode. Protocol garbage is
// dropped, not fatal: only transport errors end the stream.
var errMalformedFrame = errors.New("malformed frame")

func (s *Stream) readFrame(ctx context.Context, frame *inboundFrame) error {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, frame); err != nil {
		slog.Debug("dropping malformed media stream frame", "err", err)
		return errMalformedFrame
	}
	return nil
}

func (s *Stream) dispatchMedia(frame *inboundFrame) {
	if frame.Media == nil || s.handlers.OnMedia == nil {
		return
	}
	payload, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	if err != nil {
		slog.Debug("dropping media frame with undecodable payload", "err", err)
		return
	}
	if len(payload) == 0 {
		return
	}
	s.handlers.OnMedia(payload)
}

// Metadata returns the stream metadata. Zero value until start is received.
func (s *Stream) Metadata() StreamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Started reports whether the start event has been received.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// SendAudio sends one media frame with a base64 μ-law payload. Silent no-op
// before the start event.
func (s *Stream) SendAudio(ctx context.Context, mulaw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		slog.Debug("dropping outbound audio before stream start")
		return nil
	}
	return s.writeJSONLocked(ctx, outboundMediaFrame{
		Event:     "media",
		StreamSID: s.meta.StreamSID,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

// SendClear tells the carrier to discard buffered playback. Silent no-op
// before the start event.
func (s *Stream) SendClear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		slog.Debug("dropping clear before stream start")
		return nil
	}
	return s.writeJSONLocked(ctx, outboundClearFrame{
		Event:     "clear",
		StreamSID: s.meta.StreamSID,
	})
}

// SendMark sends a named playback position marker. The carrier echoes it back
// as a mark event once playback reaches that point. Silent no-op before start.
func (s *Stream) SendMark(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		slog.Debug("dropping mark before stream start", "name", name)
		return nil
	}
	return s.writeJSONLocked(ctx, outboundMarkFrame{
		Event:     "mark",
		StreamSID: s.meta.StreamSID,
		Mark:      markName{Name: name},
	})
}

// writeJSONLocked marshals and writes a frame. Caller must hold s.mu.
func (s *Stream) writeJSONLocked(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("carrier: marshal frame: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close shuts the WebSocket down. Idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}
