package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Compile-time check: Subprocess must implement Executor.
var _ Executor = (*Subprocess)(nil)

// Subprocess runs the configured command once per dispatch with the utterance
// appended as the final argument. The reply is the child's stdout. The child
// inherits the parent environment plus the configured extra variables,
// PHONIO_SESSION_ID, and (when set) PHONIO_CHAT_ID.
type Subprocess struct {
	executable string
	args       []string
	chatID     string
	env        map[string]string
}

// NewSubprocess creates a Subprocess executor from a whitespace-separated
// command string. chatID and env may be empty.
func NewSubprocess(command, chatID string, env map[string]string) (*Subprocess, error) {
	executable, args := splitCommand(command)
	if executable == "" {
		return nil, errors.New("executor: subprocess command is empty")
	}
	return &Subprocess{
		executable: executable,
		args:       args,
		chatID:     chatID,
		env:        env,
	}, nil
}

// Execute runs the command with the utterance and returns its stdout. When
// ctx expires the child is killed and the context error is returned.
func (s *Subprocess) Execute(ctx context.Context, sessionID, utterance string) (string, error) {
	args := make([]string, 0, len(s.args)+1)
	args = append(args, s.args...)
	args = append(args, utterance)

	cmd := exec.CommandContext(ctx, s.executable, args...)
	cmd.Env = append(os.Environ(), "PHONIO_SESSION_ID="+sessionID)
	if s.chatID != "" {
		cmd.Env = append(cmd.Env, "PHONIO_CHAT_ID="+s.chatID)
	}
	for k, v := range s.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("executor: command timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("executor: command failed: %s", msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}
