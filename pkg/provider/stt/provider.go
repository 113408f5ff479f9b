// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// Real-time caller transcription normally comes from the model session itself;
// this package exists for deployments that want an independent transcript of
// the caller's audio (e.g., a local whisper-server instance) instead of the
// model's built-in recognition. The bridge segments caller audio on silence
// and submits each completed utterance as one batch request.
package stt

import "context"

// Transcriber converts a complete PCM16 utterance into text.
//
// Implementations must be safe for concurrent use; the bridge may overlap a
// transcription request with buffering of the next utterance.
type Transcriber interface {
	// Transcribe submits one utterance of raw 16-bit little-endian signed PCM
	// at the given sample rate and returns the recognised text. An empty
	// string with a nil error means the backend heard nothing intelligible.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}
