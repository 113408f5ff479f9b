// Package bridge pumps audio and transcripts between a carrier media stream
// and a realtime model session for the lifetime of one call.
//
// Two bounded queues decouple the legs. The carrier→model queue drops its
// oldest frame when full — live microphone audio goes stale immediately, so
// shedding the oldest frame beats stalling the telephony read loop. The
// model→carrier queue blocks the producer instead: synthesized speech must
// not be silently thinned or the assistant becomes unintelligible.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/pkg/audio"
	"github.com/phonio-ai/phonio/pkg/provider/s2s"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultStagingMs   = 50
	DefaultQueueCap    = 100
	DefaultBatchFrames = 10
)

// CarrierSender is the outbound half of the carrier media stream.
// carrier.Stream satisfies it.
type CarrierSender interface {
	SendAudio(ctx context.Context, mulaw []byte) error
	SendClear(ctx context.Context) error
	SendMark(ctx context.Context, name string) error
}

// TranscriptSink receives transcript fragments and turn boundaries.
// brain.Brain satisfies it.
type TranscriptSink interface {
	AddUserFragment(text string)
	AddAssistantFragment(text string)
	HasUserFragments() bool
	FlushUser(ctx context.Context)
	FlushAssistant()
}

// Config assembles a Bridge.
type Config struct {
	// Session is the open model session for this call.
	Session s2s.SessionHandle

	// Caps carries the session's audio rates and VAD capability.
	Caps s2s.Capabilities

	// Carrier is the outbound media stream.
	Carrier CarrierSender

	// Transcripts receives fragments and boundaries. May be nil.
	Transcripts TranscriptSink

	// STT selects the transcription strategy. Nil means ModelBuiltinSTT.
	STT Strategy

	// StagingMs is the minimum staged input audio before a forward.
	StagingMs int

	// QueueCap bounds both queues.
	QueueCap int

	// BatchFrames caps how many queued frames one SendAudio call coalesces.
	BatchFrames int

	// Metrics overrides the instrument set. Nil means observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Bridge owns the four pumps of one call: carrier→model staging and send,
// model→carrier transcode and playback, and the event loop feeding the
// transcript sink.
type Bridge struct {
	sess    s2s.SessionHandle
	caps    s2s.Capabilities
	carrier CarrierSender
	sink    TranscriptSink
	stt     Strategy

	stagingMs   int
	batchFrames int

	transcoder audio.Transcoder
	staging    []byte

	toModel   chan []byte
	toCarrier chan []byte

	// playMu keeps barge-in (drain + clear) atomic with respect to the
	// playback pump, so no pre-clear frame is sent after the clear. clearSeq
	// bumps on every clear; the playback pump drops a dequeued frame whose
	// snapshot is stale.
	playMu   sync.Mutex
	clearSeq int64

	interruptions atomic.Int64
	markSeq       atomic.Int64

	// runCtx is published by Run and read from the carrier's read loop, which
	// may push audio concurrently with Run starting up.
	runCtx  atomic.Pointer[context.Context]
	metrics *observe.Metrics
}

// New creates a Bridge. Call Run to start the pumps.
func New(cfg Config) *Bridge {
	if cfg.StagingMs <= 0 {
		cfg.StagingMs = DefaultStagingMs
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = DefaultQueueCap
	}
	if cfg.BatchFrames <= 0 {
		cfg.BatchFrames = DefaultBatchFrames
	}
	stt := cfg.STT
	if stt == nil {
		stt = ModelBuiltinSTT{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	b := &Bridge{
		sess:        cfg.Session,
		caps:        cfg.Caps,
		carrier:     cfg.Carrier,
		sink:        cfg.Transcripts,
		stt:         stt,
		stagingMs:   cfg.StagingMs,
		batchFrames: cfg.BatchFrames,
		toModel:     make(chan []byte, cfg.QueueCap),
		toCarrier:   make(chan []byte, cfg.QueueCap),
		metrics:     metrics,
	}
	background := context.Background()
	b.runCtx.Store(&background)
	return b
}

// ctx returns the context published by Run, or context.Background before Run
// starts.
func (b *Bridge) ctx() context.Context {
	return *b.runCtx.Load()
}

// Interruptions returns how many barge-ins occurred so far.
func (b *Bridge) Interruptions() int64 {
	return b.interruptions.Load()
}

// errSessionEnded unwinds all pumps once the model closes its audio stream.
var errSessionEnded = errors.New("session ended")

// Run starts all pumps and blocks until the session ends, a pump fails, or
// ctx is cancelled. A closed model audio channel ends the call; the session's
// Err distinguishes clean shutdown from transport failure.
func (b *Bridge) Run(ctx context.Context) error {
	b.runCtx.Store(&ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.sendPump(ctx) })
	g.Go(func() error { return b.receivePump(ctx) })
	g.Go(func() error { return b.playPump(ctx) })
	g.Go(func() error { return b.eventLoop(ctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, errSessionEnded) && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := b.sess.Err(); err != nil {
		return fmt.Errorf("bridge: model session: %w", err)
	}
	return nil
}

// PushCarrierAudio accepts one inbound μ-law payload from the carrier read
// loop. It transcodes to the model's input format, feeds the STT strategy and
// the barge-in heuristic, and stages the PCM until enough is accumulated.
func (b *Bridge) PushCarrierAudio(mulaw []byte) {
	pcm := b.transcoder.CarrierToModel(mulaw, b.caps.InputSampleRate)
	if len(pcm) == 0 {
		b.metrics.RecordCodecError(b.ctx())
		return
	}

	b.stt.OnCarrierPCM(b.ctx(), pcm)

	// Without server VAD the model never announces caller speech, so the
	// bridge infers barge-in from inbound energy while playback is queued.
	if !b.caps.ServerVAD && len(b.toCarrier) > 0 && audio.RMS(pcm) >= audio.DefaultSilenceRMS {
		b.bargeIn()
	}

	b.staging = append(b.staging, pcm...)
	if audio.DurationMs(b.staging, b.caps.InputSampleRate) < float64(b.stagingMs) {
		return
	}

	frame := b.staging
	b.staging = nil
	b.enqueueToModel(frame)
}

// enqueueToModel queues one staged frame, evicting the oldest on overflow.
func (b *Bridge) enqueueToModel(frame []byte) {
	select {
	case b.toModel <- frame:
		return
	default:
	}

	select {
	case <-b.toModel:
		b.metrics.RecordFrameDropped(b.ctx())
	default:
	}
	select {
	case b.toModel <- frame:
	default:
		b.metrics.RecordFrameDropped(b.ctx())
	}
}

// sendPump forwards staged frames to the model, coalescing up to batchFrames
// queued frames into one SendAudio call while preserving byte order.
func (b *Bridge) sendPump(ctx context.Context) error {
	for {
		var first []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-b.toModel:
			if !ok {
				return nil
			}
			first = frame
		}

		batch := first
		sent := 1
	drain:
		for sent < b.batchFrames {
			select {
			case frame, ok := <-b.toModel:
				if !ok {
					break drain
				}
				batch = append(batch, frame...)
				sent++
			default:
				break drain
			}
		}

		if err := b.sess.SendAudio(batch); err != nil {
			return fmt.Errorf("bridge: send audio to model: %w", err)
		}
		for range sent {
			b.metrics.RecordFrameForwarded(ctx, observe.DirectionCarrierToModel)
		}
	}
}

// receivePump transcodes model audio down to carrier μ-law and enqueues it.
// The enqueue blocks when the playback queue is full.
func (b *Bridge) receivePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm, ok := <-b.sess.Audio():
			if !ok {
				return errSessionEnded
			}
			if len(pcm)%2 != 0 {
				// The transcoder salvages the chunk by dropping the
				// trailing byte, but the payload was still malformed.
				b.metrics.RecordCodecError(ctx)
			}
			mulaw := b.transcoder.ModelToCarrier(pcm, b.caps.OutputSampleRate)
			if len(mulaw) == 0 {
				b.metrics.RecordCodecError(ctx)
				continue
			}
			select {
			case b.toCarrier <- mulaw:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// playPump delivers queued μ-law frames to the carrier. After each burst
// (queue runs empty) it sends a named mark so playback progress is observable
// in the carrier's mark acks.
func (b *Bridge) playPump(ctx context.Context) error {
	for {
		b.playMu.Lock()
		seq := b.clearSeq
		b.playMu.Unlock()

		var mulaw []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mulaw = <-b.toCarrier:
		}

		b.playMu.Lock()
		if b.clearSeq != seq {
			// A barge-in cleared playback while this frame was in flight.
			b.playMu.Unlock()
			continue
		}
		err := b.carrier.SendAudio(ctx, mulaw)
		if err == nil && len(b.toCarrier) == 0 {
			name := fmt.Sprintf("msg-%d", b.markSeq.Add(1))
			err = b.carrier.SendMark(ctx, name)
		}
		b.playMu.Unlock()

		if err != nil {
			return fmt.Errorf("bridge: send audio to carrier: %w", err)
		}
		b.metrics.RecordFrameForwarded(ctx, observe.DirectionModelToCarrier)
	}
}

// bargeIn handles a caller interruption: drain the playback queue, then clear
// the carrier's buffer, then count — in that order. The model aborts its own
// generation server-side; the bridge does not cancel it explicitly.
func (b *Bridge) bargeIn() {
	ctx := b.ctx()

	b.playMu.Lock()
	defer b.playMu.Unlock()

	drained := 0
drain:
	for {
		select {
		case <-b.toCarrier:
			drained++
		default:
			break drain
		}
	}

	if err := b.carrier.SendClear(ctx); err != nil {
		observe.Logger(ctx).Warn("failed to send clear on barge-in", "err", err)
	}
	b.clearSeq++

	b.interruptions.Add(1)
	b.metrics.RecordBargeIn(ctx)
	observe.Logger(ctx).Debug("barge-in", "drained_frames", drained)
}

// eventLoop routes session events to the transcript sink and triggers
// barge-in on explicit speech-started events.
func (b *Bridge) eventLoop(ctx context.Context) error {
	suppressUser := b.stt.SuppressModelUserTranscripts()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.sess.Events():
			if !ok {
				return nil
			}
			b.handleEvent(ctx, evt, suppressUser)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, evt s2s.Event, suppressUser bool) {
	switch evt.Kind {
	case s2s.EventUserSpeechStarted:
		b.bargeIn()

	case s2s.EventUserSpeechStopped:
		if b.sink != nil && !suppressUser {
			b.sink.FlushUser(ctx)
		}

	case s2s.EventUserTranscriptDelta:
		if b.sink != nil && !suppressUser {
			b.sink.AddUserFragment(evt.Text)
		}

	case s2s.EventUserTranscriptFinal:
		if b.sink != nil && !suppressUser {
			b.sink.AddUserFragment(evt.Text)
			b.sink.FlushUser(ctx)
		}

	case s2s.EventAssistantTranscriptDelta:
		if b.sink == nil {
			return
		}
		// A new assistant fragment implies the caller's turn is over even
		// when the provider never signals speech boundaries.
		if b.sink.HasUserFragments() {
			b.sink.FlushUser(ctx)
		}
		b.sink.AddAssistantFragment(evt.Text)

	case s2s.EventResponseDone:
		if b.sink != nil {
			b.sink.FlushAssistant()
		}

	case s2s.EventError:
		observe.Logger(ctx).Warn("model session error event",
			"code", evt.Code, "message", evt.Message)
	}
}
