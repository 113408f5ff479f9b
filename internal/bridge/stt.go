package bridge

import (
	"context"
	"sync"

	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/pkg/audio"
	"github.com/phonio-ai/phonio/pkg/provider/stt"
)

// ExternalSTTOption tunes an ExternalBatchSTT strategy.
type ExternalSTTOption func(*ExternalBatchSTT)

// WithSilenceThreshold overrides the RMS level separating speech from silence.
func WithSilenceThreshold(rms float64) ExternalSTTOption {
	return func(e *ExternalBatchSTT) {
		if rms > 0 {
			e.detector.Threshold = rms
		}
	}
}

// WithSilenceWindow overrides the consecutive-silence window ending an
// utterance.
func WithSilenceWindow(ms int) ExternalSTTOption {
	return func(e *ExternalBatchSTT) {
		if ms > 0 {
			e.detector.SilenceMs = ms
		}
	}
}

// WithMinUtterance overrides the minimum utterance length worth transcribing.
func WithMinUtterance(ms int) ExternalSTTOption {
	return func(e *ExternalBatchSTT) {
		if ms > 0 {
			e.minBufferMs = float64(ms)
		}
	}
}

// Strategy decides how caller speech becomes user transcript fragments.
type Strategy interface {
	// OnCarrierPCM observes inbound caller audio after transcoding to the
	// model's input rate. Called from the carrier read loop, never
	// concurrently.
	OnCarrierPCM(ctx context.Context, pcm []byte)

	// SuppressModelUserTranscripts reports whether the model's own user
	// transcript events are ignored in favor of this strategy's output.
	SuppressModelUserTranscripts() bool
}

// ModelBuiltinSTT relies entirely on the model's server-side transcription.
// It is the default strategy.
type ModelBuiltinSTT struct{}

var _ Strategy = ModelBuiltinSTT{}

func (ModelBuiltinSTT) OnCarrierPCM(context.Context, []byte) {}

func (ModelBuiltinSTT) SuppressModelUserTranscripts() bool { return false }

// ExternalBatchSTT buffers caller audio per utterance and ships each
// silence-delimited chunk to a batch transcriber. Model-side user transcripts
// are suppressed while it is active so turns are not recorded twice.
type ExternalBatchSTT struct {
	transcriber stt.Transcriber
	sink        TranscriptSink
	detector    *audio.SilenceDetector
	sampleRate  int
	minBufferMs float64

	mu     sync.Mutex
	buffer []byte

	wg sync.WaitGroup
}

var _ Strategy = (*ExternalBatchSTT)(nil)

// NewExternalBatchSTT builds the external strategy for audio at the given
// sample rate. Utterances shorter than audio.DefaultMinBufferMs are dropped
// as noise rather than transcribed.
func NewExternalBatchSTT(transcriber stt.Transcriber, sink TranscriptSink, sampleRate int, opts ...ExternalSTTOption) *ExternalBatchSTT {
	e := &ExternalBatchSTT{
		transcriber: transcriber,
		sink:        sink,
		detector:    audio.NewSilenceDetector(sampleRate),
		sampleRate:  sampleRate,
		minBufferMs: audio.DefaultMinBufferMs,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ExternalBatchSTT) SuppressModelUserTranscripts() bool { return true }

// OnCarrierPCM accumulates audio until the silence detector reports an
// utterance boundary, then transcribes the buffered utterance asynchronously
// so the audio path never waits on the network.
func (e *ExternalBatchSTT) OnCarrierPCM(ctx context.Context, pcm []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer = append(e.buffer, pcm...)
	if !e.detector.Observe(pcm) {
		return
	}

	utterance := e.buffer
	e.buffer = nil
	e.detector.Reset()

	if audio.DurationMs(utterance, e.sampleRate) < e.minBufferMs {
		return
	}

	e.wg.Add(1)
	go e.transcribe(ctx, utterance)
}

func (e *ExternalBatchSTT) transcribe(ctx context.Context, utterance []byte) {
	defer e.wg.Done()

	text, err := e.transcriber.Transcribe(ctx, utterance, e.sampleRate)
	if err != nil {
		observe.Logger(ctx).Warn("external transcription failed",
			"err", err, "utterance_ms", audio.DurationMs(utterance, e.sampleRate))
		return
	}
	if text == "" || e.sink == nil {
		return
	}
	e.sink.AddUserFragment(text)
	e.sink.FlushUser(ctx)
}

// Wait blocks until in-flight transcriptions finish. Call during teardown.
func (e *ExternalBatchSTT) Wait() {
	e.wg.Wait()
}
