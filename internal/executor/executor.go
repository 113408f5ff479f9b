// Package executor dispatches actionable caller utterances to an external
// command assistant and returns its textual reply.
//
// Two implementations are provided: [Subprocess] spawns a fresh child process
// per dispatch and reads its stdout; [MCP] keeps a persistent stdio MCP child
// and calls its execute_command tool. Both kill the child when the context
// deadline expires.
package executor

import (
	"context"
	"strings"
)

// Executor runs one actionable utterance and returns the assistant's reply.
// Implementations must be safe for concurrent use; callers serialize dispatch
// per call session, but multiple sessions may share one Executor.
type Executor interface {
	Execute(ctx context.Context, sessionID, utterance string) (string, error)
}

// splitCommand splits a command string into executable and arguments on
// whitespace. Quoting is not supported; commands needing shell semantics
// should point at a wrapper script.
func splitCommand(command string) (executable string, args []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// CleanReply strips framework noise from an assistant reply before it is
// spoken: leading/trailing whitespace and lines that are warnings or
// deprecation notices emitted by the assistant's own runtime.
func CleanReply(reply string) string {
	lines := strings.Split(reply, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "WARNING"),
			strings.HasPrefix(trimmed, "Warning:"),
			strings.HasPrefix(trimmed, "DeprecationWarning"),
			strings.Contains(trimmed, "deprecated"):
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
