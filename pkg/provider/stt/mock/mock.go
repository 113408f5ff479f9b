// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to feed controlled recognition results and inspect which
// utterances were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "open Spotify"}
//	text, _ := tr.Transcribe(ctx, pcm, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/phonio-ai/phonio/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe unless Texts has entries left.
	Text string

	// Texts, when non-empty, is consumed one entry per Transcribe call before
	// falling back to Text.
	Texts []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next configured text.
func (t *Transcriber) Transcribe(_ context.Context, pcm []byte, sampleRate int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	t.Calls = append(t.Calls, TranscribeCall{PCM: cp, SampleRate: sampleRate})
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) > 0 {
		text := t.Texts[0]
		t.Texts = t.Texts[1:]
		return text, nil
	}
	return t.Text, nil
}

// Transcriptions returns a copy of all recorded calls. Thread-safe.
func (t *Transcriber) Transcriptions() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscribeCall, len(t.Calls))
	copy(out, t.Calls)
	return out
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
