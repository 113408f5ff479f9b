// Package mock provides a test double for the executor.Executor interface.
package mock

import (
	"context"
	"sync"

	"github.com/phonio-ai/phonio/internal/executor"
)

// Compile-time check: Executor must implement executor.Executor.
var _ executor.Executor = (*Executor)(nil)

// ExecuteCall records the arguments of one Execute invocation.
type ExecuteCall struct {
	SessionID string
	Utterance string
}

// Executor is a configurable executor.Executor test double.
type Executor struct {
	mu sync.Mutex

	// Reply is returned from Execute when Replies is exhausted.
	Reply string

	// Replies is a FIFO queue of replies; each Execute consumes one.
	Replies []string

	// Err, when non-nil, is returned from every Execute.
	Err error

	// Delay, when set, makes Execute block until the delay elapses or ctx is
	// cancelled (returning ctx.Err()). Expressed via a channel so tests can
	// control timing precisely: Execute blocks until Block is closed.
	Block chan struct{}

	calls []ExecuteCall
}

// Execute records the call and returns the configured reply or error.
func (e *Executor) Execute(ctx context.Context, sessionID, utterance string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, ExecuteCall{SessionID: sessionID, Utterance: utterance})
	block := e.Block
	err := e.Err
	reply := e.Reply
	if len(e.Replies) > 0 {
		reply = e.Replies[0]
		e.Replies = e.Replies[1:]
	}
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Calls returns a copy of all recorded Execute invocations.
func (e *Executor) Calls() []ExecuteCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecuteCall, len(e.calls))
	copy(out, e.calls)
	return out
}
