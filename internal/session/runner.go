package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phonio-ai/phonio/internal/brain"
	"github.com/phonio-ai/phonio/internal/bridge"
	"github.com/phonio-ai/phonio/internal/carrier"
	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/pkg/provider/s2s"
)

// runner owns the live pipeline of one call: the carrier stream, the model
// session, the bridge, and the brain. It exists from WebSocket accept until
// either leg ends.
type runner struct {
	m      *Manager
	stream *carrier.Stream
	call   *call
	brain  *brain.Brain
	bridge atomic.Pointer[bridge.Bridge]

	runCtx    context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	ready     chan struct{}
}

// ServeMediaStream upgrades the carrier's media stream WebSocket and runs the
// call pipeline until the call ends. It blocks for the duration of the call.
func (m *Manager) ServeMediaStream(w http.ResponseWriter, req *http.Request) {
	r := &runner{m: m, ready: make(chan struct{})}

	stream, err := carrier.Accept(w, req, carrier.Handlers{
		OnStart: r.onStart,
		OnMedia: r.onMedia,
		OnMark:  r.onMark,
		OnStop:  r.onStop,
	})
	if err != nil {
		observe.Logger(req.Context()).Warn("media stream accept failed", "err", err)
		return
	}
	r.stream = stream

	if err := r.run(req.Context()); err != nil {
		observe.Logger(req.Context()).Warn("call pipeline ended with error", "err", err)
	}
}

func (r *runner) onStart(meta carrier.StreamMetadata) {
	r.call = r.m.resolve(r.runCtx, meta)
	r.startOnce.Do(func() { close(r.ready) })
}

func (r *runner) onMedia(mulaw []byte) {
	if b := r.bridge.Load(); b != nil {
		b.PushCarrierAudio(mulaw)
	}
}

func (r *runner) onMark(name string) {
	observe.Logger(r.runCtx).Debug("carrier played mark", "name", name)
}

func (r *runner) onStop() {
	// The carrier announced the end of the call; Run on the stream returns
	// right after this, which unwinds the pipeline.
}

// stop aborts the pipeline, as when the call is ended through the API.
func (r *runner) stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// run drives the call: wait for the carrier's start frame, open the model
// session, assemble brain and bridge, then block until either leg ends.
// Teardown runs in reverse order of construction.
func (r *runner) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	r.cancel = cancel
	r.runCtx = ctx

	streamErr := make(chan error, 1)
	go func() { streamErr <- r.stream.Run(ctx) }()

	select {
	case <-r.ready:
	case err := <-streamErr:
		if err != nil {
			return fmt.Errorf("session: media stream setup: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = r.stream.Close()
		return ctx.Err()
	}

	c := r.call
	r.m.mu.Lock()
	c.runner = r
	r.m.mu.Unlock()

	cfg := r.m.cfg
	caps := cfg.Model.Capabilities()
	if caps.MaxSessionDurationMs > 0 {
		var cancelCap context.CancelFunc
		ctx, cancelCap = context.WithTimeout(ctx, time.Duration(caps.MaxSessionDurationMs)*time.Millisecond)
		defer cancelCap()
	}

	handle, err := cfg.Model.Connect(ctx, s2s.SessionConfig{
		Instructions:  cfg.Instructions,
		Voice:         cfg.Voice,
		InitialPrompt: c.Prompt,
	})
	if err != nil {
		_ = r.stream.Close()
		r.m.finalize(context.WithoutCancel(ctx), c, StatusFailed)
		return fmt.Errorf("session: connect model: %w", err)
	}

	br := brain.New(brain.Config{
		SessionID:       c.CallID,
		Classifier:      cfg.Classifier,
		Executor:        cfg.Executor,
		DispatchTimeout: cfg.ExecutorTimeout,
		Speak: func(ctx context.Context, text string) error {
			return handle.SendText(text, true)
		},
	})
	r.brain = br

	var strategy bridge.Strategy
	if cfg.Transcriber != nil {
		strategy = bridge.NewExternalBatchSTT(cfg.Transcriber, br, caps.InputSampleRate,
			bridge.WithSilenceThreshold(cfg.ExternalSTT.RMSThreshold),
			bridge.WithSilenceWindow(cfg.ExternalSTT.SilenceMs),
			bridge.WithMinUtterance(cfg.ExternalSTT.MinBufferMs),
		)
	}

	b := bridge.New(bridge.Config{
		Session:     handle,
		Caps:        caps,
		Carrier:     r.stream,
		Transcripts: br,
		STT:         strategy,
		StagingMs:   cfg.Bridge.StagingMs,
		QueueCap:    cfg.Bridge.QueueCap,
		BatchFrames: cfg.Bridge.BatchFrames,
	})
	r.bridge.Store(b)

	bridgeErr := make(chan error, 1)
	go func() { bridgeErr <- b.Run(ctx) }()

	observe.Logger(ctx).Info("call pipeline running",
		"call_id", c.CallID,
		"direction", string(c.Direction),
		"input_rate", caps.InputSampleRate,
		"output_rate", caps.OutputSampleRate,
		"external_stt", strategy != nil,
	)

	var runErr error
	var carrierLeg bool
	select {
	case runErr = <-streamErr: // caller hung up or the stream broke
		carrierLeg = true
	case runErr = <-bridgeErr: // the model session ended
	case <-ctx.Done():
	}
	cancel()

	// Reverse order: model session, pending dispatches and transcriptions,
	// then the carrier socket.
	if err := handle.Close(); err != nil {
		observe.Logger(ctx).Warn("model session close failed", "call_id", c.CallID, "err", err)
	}
	if ext, ok := strategy.(*bridge.ExternalBatchSTT); ok {
		ext.Wait()
	}
	br.Wait()
	_ = r.stream.Close()

	status := StatusCompleted
	switch {
	case runErr == nil || errors.Is(runErr, context.Canceled):
		runErr = nil
	case carrierLeg:
		// Most callers hang up by dropping the socket rather than sending a
		// stop event. The call ran its course; it did not fail.
		observe.Logger(ctx).Debug("carrier stream closed abruptly",
			"call_id", c.CallID, "err", runErr)
		runErr = nil
	default:
		status = StatusFailed
	}
	r.m.finalize(context.WithoutCancel(ctx), c, status)

	if runErr != nil {
		return fmt.Errorf("session: call %s: %w", c.CallID, runErr)
	}
	return nil
}
