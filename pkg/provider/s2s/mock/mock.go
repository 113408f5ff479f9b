// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the audio/event streams and inspect which methods the
// bridge invoked.
//
// Example:
//
//	sess := &mock.Session{
//	    AudioCh:  make(chan []byte, 8),
//	    EventsCh: make(chan s2s.Event, 4),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/phonio-ai/phonio/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a new default Session with buffered channels.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		AudioCh:  make(chan []byte, 64),
		EventsCh: make(chan s2s.Event, 32),
	}, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Ensure Provider implements s2s.Provider at compile time.
var _ s2s.Provider = (*Provider)(nil)

// SendTextCall records a single invocation of Session.SendText.
type SendTextCall struct {
	// Text is the string passed to SendText.
	Text string
	// EndOfTurn is the flag passed to SendText.
	EndOfTurn bool
}

// Session is a mock implementation of s2s.SessionHandle.
// Callers should pre-populate AudioCh and EventsCh, then close them to signal
// end-of-session.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel.
	AudioCh chan []byte

	// EventsCh is the channel returned by Events(). Callers own this channel.
	EventsCh chan s2s.Event

	// ErrVal is returned by Err.
	ErrVal error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	// InterruptErr, if non-nil, is returned by every Interrupt call.
	InterruptErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// SendTextCalls records every call to SendText in order.
	SendTextCalls []SendTextCall

	// InterruptCallCount is the number of times Interrupt was called.
	InterruptCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// SendText records the call and returns SendTextErr.
func (s *Session) SendText(text string, endOfTurn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendTextCalls = append(s.SendTextCalls, SendTextCall{Text: text, EndOfTurn: endOfTurn})
	return s.SendTextErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Events returns EventsCh.
func (s *Session) Events() <-chan s2s.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Interrupt records the call and returns InterruptErr.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCallCount++
	return s.InterruptErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SentAudio returns a copy of all recorded SendAudio chunks. Thread-safe.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	copy(out, s.SendAudioCalls)
	return out
}

// SentTexts returns a copy of all recorded SendText calls. Thread-safe.
func (s *Session) SentTexts() []SendTextCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendTextCall, len(s.SendTextCalls))
	copy(out, s.SendTextCalls)
	return out
}

// Interrupts returns InterruptCallCount. Thread-safe.
func (s *Session) Interrupts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InterruptCallCount
}

// Ensure Session implements s2s.SessionHandle at compile time.
var _ s2s.SessionHandle = (*Session)(nil)
