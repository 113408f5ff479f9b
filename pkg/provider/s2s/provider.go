// Package s2s defines the Provider interface for real-time speech-to-speech
// model backends.
//
// An S2S provider wraps a real-time voice AI service that accepts raw audio
// input and returns synthesised audio output in a single, stateful session —
// bypassing the separate STT → LLM → TTS pipeline entirely. The bridge talks
// only to this abstraction; the two concrete vendors differ solely in how
// their wire events map onto it.
//
// The central abstraction is SessionHandle: a bidirectional, multiplexed
// channel carrying audio one way and audio plus transcript events the other.
// A session lives for exactly one phone call; a mid-call connection error is
// fatal for that call and there is no transparent reconnection (the carrier
// side would drift).
//
// All implementations must be safe for concurrent use.
package s2s

import "context"

// EventKind discriminates the non-audio events a session emits.
type EventKind int

const (
	// EventAssistantTranscriptDelta carries an incremental fragment of what
	// the model is saying. Fragments may arrive before, during, or after the
	// audio for the same turn.
	EventAssistantTranscriptDelta EventKind = iota

	// EventUserTranscriptDelta carries an incremental fragment of the
	// caller's recognised speech.
	EventUserTranscriptDelta

	// EventUserTranscriptFinal carries the authoritative transcript of a
	// completed caller utterance.
	EventUserTranscriptFinal

	// EventUserSpeechStarted signals that the provider's voice activity
	// detection heard the caller start speaking. Only emitted when
	// Capabilities().ServerVAD is true.
	EventUserSpeechStarted

	// EventUserSpeechStopped signals the end of caller speech.
	EventUserSpeechStopped

	// EventResponseDone signals that the assistant finished its turn.
	EventResponseDone

	// EventError carries a provider-reported error. The session may continue
	// after a non-fatal error event; fatal transport errors surface through
	// Err instead.
	EventError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventAssistantTranscriptDelta:
		return "assistant_transcript_delta"
	case EventUserTranscriptDelta:
		return "user_transcript_delta"
	case EventUserTranscriptFinal:
		return "user_transcript_final"
	case EventUserSpeechStarted:
		return "user_speech_started"
	case EventUserSpeechStopped:
		return "user_speech_stopped"
	case EventResponseDone:
		return "response_done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a non-audio session event.
type Event struct {
	// Kind discriminates the event.
	Kind EventKind

	// Text is the transcript fragment for the transcript kinds.
	Text string

	// Code and Message describe an EventError.
	Code    string
	Message string
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Instructions is the system-level prompt defining the agent's persona
	// and the per-call task.
	Instructions string

	// Voice is the provider-specific voice identifier for synthesised speech.
	Voice string

	// InitialPrompt, when non-empty, is injected as a user turn immediately
	// after connect so the agent greets the caller without waiting for them
	// to speak first.
	InitialPrompt string
}

// Capabilities describes static properties of a provider. The values are
// assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// InputSampleRate is the PCM16 rate the provider expects on SendAudio.
	InputSampleRate int

	// OutputSampleRate is the PCM16 rate of audio emitted on Audio().
	OutputSampleRate int

	// ServerVAD indicates the provider detects caller speech boundaries
	// itself and emits EventUserSpeechStarted/Stopped. When false the bridge
	// must infer the caller-turn boundary from transcript ordering.
	ServerVAD bool

	// MaxSessionDurationMs is the hard upper bound on session lifetime in
	// milliseconds, as imposed by the provider. Zero means no documented
	// limit.
	MaxSessionDurationMs int
}

// SessionHandle represents an open model session. It is an interface so that
// test code can supply mock implementations without a live provider
// connection.
//
// The session is the hot path of the call — every method must return quickly.
// Audio output is channel-based to avoid blocking the provider's receive
// loop. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 chunk at the provider's input rate. The
	// caller may coalesce several queued chunks into one SendAudio call;
	// byte order must be preserved. Returns an error if the session is
	// closed or the transport write fails.
	SendAudio(chunk []byte) error

	// SendText injects text into the caller-visible conversation as a user
	// turn. With endOfTurn true the model produces a spoken response to it.
	SendText(text string, endOfTurn bool) error

	// Audio returns a read-only channel emitting raw PCM16 chunks as the
	// model speaks, at the provider's output rate. The channel is closed
	// when the session ends; check Err afterwards to distinguish a clean
	// close from a transport failure. Consumers must drain promptly.
	Audio() <-chan []byte

	// Events returns a read-only channel emitting transcript and lifecycle
	// events. Closed together with Audio when the session ends.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly.
	Err() error

	// Interrupt asks the provider to stop generating the current response
	// and discard its buffered audio, as on caller barge-in. Providers
	// without an explicit cancel may treat this as a no-op; their own VAD
	// aborts playback server-side.
	Interrupt() error

	// Close terminates the session, releases all resources, and closes the
	// Audio and Events channels. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any real-time model backend.
//
// Implementations must be safe for concurrent use; the server opens one
// session per active call.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (authentication
	// failure, invalid voice, or ctx already cancelled). The caller owns the
	// SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider, including
	// the audio rates the codec layer must be configured for.
	Capabilities() Capabilities
}
