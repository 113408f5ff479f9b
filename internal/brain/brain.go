package brain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/phonio-ai/phonio/internal/executor"
	"github.com/phonio-ai/phonio/internal/observe"
)

// FallbackPhrase is spoken when the executor fails outright.
const FallbackPhrase = "Sorry, I wasn't able to complete that command."

// TimeoutPhrase is spoken when the executor is still running at the dispatch
// deadline; the command may yet complete in the background.
const TimeoutPhrase = "I'm still working on that, it's taking longer than expected."

// defaultDispatchTimeout bounds one executor dispatch.
const defaultDispatchTimeout = 90 * time.Second

// SpeakFunc delivers text to the voice model as a completed turn, typically
// SendText(text, endOfTurn=true) on the model stream.
type SpeakFunc func(ctx context.Context, text string) error

// Config assembles a Brain.
type Config struct {
	SessionID  string
	Classifier *Classifier

	// Executor may be nil; actionable turns then get the fallback phrase.
	Executor executor.Executor

	// Speak voices executor replies back to the caller. May be nil.
	Speak SpeakFunc

	// DispatchTimeout defaults to 90 s when zero.
	DispatchTimeout time.Duration
}

// Brain accumulates transcript fragments per speaker and acts on completed
// turns. Fragment methods and flushes are called from the bridge's event
// loop; dispatch runs in its own goroutine, serialized so at most one
// executor call is outstanding per session.
type Brain struct {
	sessionID       string
	classifier      *Classifier
	exec            executor.Executor
	speak           SpeakFunc
	dispatchTimeout time.Duration
	memory          *Memory
	metrics         *observe.Metrics

	mu           sync.Mutex
	userBuf      strings.Builder
	assistantBuf strings.Builder

	dispatchMu sync.Mutex
	wg         sync.WaitGroup
}

// New creates a Brain with fresh per-call memory.
func New(cfg Config) *Brain {
	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Brain{
		sessionID:       cfg.SessionID,
		classifier:      cfg.Classifier,
		exec:            cfg.Executor,
		speak:           cfg.Speak,
		dispatchTimeout: timeout,
		memory:          NewMemory(),
		metrics:         observe.DefaultMetrics(),
	}
}

// Memory exposes the per-call memory for summaries and persistence.
func (b *Brain) Memory() *Memory { return b.memory }

// AddUserFragment appends one user transcript fragment.
func (b *Brain) AddUserFragment(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	b.userBuf.WriteString(text)
	b.mu.Unlock()
}

// AddAssistantFragment appends one assistant transcript fragment.
func (b *Brain) AddAssistantFragment(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	b.assistantBuf.WriteString(text)
	b.mu.Unlock()
}

// HasUserFragments reports whether undelivered user fragments are buffered.
func (b *Brain) HasUserFragments() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userBuf.Len() > 0
}

// FlushUser completes the current user turn: the buffered fragments are
// concatenated verbatim, outer whitespace trimmed, recorded in memory, and
// classified. Actionable turns are dispatched asynchronously. An empty
// buffer (including a second flush in a row) is a no-op.
func (b *Brain) FlushUser(ctx context.Context) {
	b.mu.Lock()
	text := strings.TrimSpace(b.userBuf.String())
	b.userBuf.Reset()
	b.mu.Unlock()

	if text == "" {
		return
	}

	recent := b.memory.Turns()
	b.memory.AddTurn(SpeakerUser, text)
	b.memory.ExtractEntities(text)

	intent, stage := b.classifier.Classify(ctx, text, recent)
	observe.Logger(ctx).Debug("user turn classified",
		"session_id", b.sessionID, "intent", intent, "stage", stage, "text", text)

	if intent != IntentAction {
		return
	}

	b.memory.AddCommand(text)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(ctx, text)
	}()
}

// FlushAssistant completes the current assistant turn into memory. Empty or
// repeated flushes are no-ops.
func (b *Brain) FlushAssistant() {
	b.mu.Lock()
	text := strings.TrimSpace(b.assistantBuf.String())
	b.assistantBuf.Reset()
	b.mu.Unlock()

	if text == "" {
		return
	}
	b.memory.AddTurn(SpeakerAssistant, text)
}

// dispatch runs the executor for one actionable utterance and speaks the
// reply. Serialized: a second actionable turn waits for the first to finish.
func (b *Brain) dispatch(ctx context.Context, utterance string) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	log := observe.Logger(ctx).With("session_id", b.sessionID, "utterance", utterance)

	reply := FallbackPhrase
	if b.exec != nil {
		dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.dispatchTimeout)
		defer cancel()

		start := time.Now()
		out, err := b.exec.Execute(dispatchCtx, b.sessionID, utterance)
		b.metrics.ExecutorDuration.Record(ctx, time.Since(start).Seconds())

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("executor dispatch timed out", "timeout", b.dispatchTimeout)
			reply = TimeoutPhrase
		case err != nil:
			log.Warn("executor dispatch failed", "err", err)
		default:
			if cleaned := executor.CleanReply(out); cleaned != "" {
				reply = cleaned
			}
		}
	} else {
		log.Warn("no executor configured, speaking fallback")
	}

	if b.speak == nil {
		return
	}
	prompt := "Relay this result to the caller in one short sentence: " + reply
	if err := b.speak(ctx, prompt); err != nil {
		log.Warn("failed to speak executor reply", "err", err)
	}
}

// Wait blocks until all in-flight dispatches finish. Called on teardown
// before the summary is emitted.
func (b *Brain) Wait() {
	b.wg.Wait()
}

// Summary renders the operator summary for this call.
func (b *Brain) Summary() string {
	return b.memory.Summary()
}
