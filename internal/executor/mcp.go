package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// executeToolName is the MCP tool the command assistant must expose.
const executeToolName = "execute_command"

// Compile-time check: MCP must implement Executor.
var _ Executor = (*MCP)(nil)

// MCP dispatches utterances to a persistent command-assistant child speaking
// the Model Context Protocol over stdio. The child is spawned once at
// construction and reused for every dispatch; per-dispatch deadlines only
// cancel the individual tool call, not the child.
type MCP struct {
	session *mcpsdk.ClientSession
	chatID  string

	closeOnce sync.Once
	closeErr  error
}

// NewMCP spawns the command as an MCP stdio server and verifies it exposes
// the execute_command tool. env entries are injected into the child's
// environment.
func NewMCP(ctx context.Context, command, chatID string, env map[string]string) (*MCP, error) {
	executable, args := splitCommand(command)
	if executable == "" {
		return nil, errors.New("executor: mcp command is empty")
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "phonio-executor", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("executor: connect mcp child: %w", err)
	}

	found := false
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("executor: list mcp tools: %w", err)
		}
		if tool.Name == executeToolName {
			found = true
			break
		}
	}
	if !found {
		_ = session.Close()
		return nil, fmt.Errorf("executor: mcp child does not expose %q", executeToolName)
	}

	return &MCP{session: session, chatID: chatID}, nil
}

// Execute calls the execute_command tool with the utterance and returns the
// concatenated text content of the result.
func (m *MCP) Execute(ctx context.Context, sessionID, utterance string) (string, error) {
	args := map[string]any{
		"command":    utterance,
		"session_id": sessionID,
	}
	if m.chatID != "" {
		args["chat_id"] = m.chatID
	}

	result, err := m.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      executeToolName,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("executor: mcp call: %w", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	reply := strings.TrimSpace(sb.String())

	if result.IsError {
		if reply == "" {
			reply = "tool returned an error"
		}
		return "", fmt.Errorf("executor: %s", reply)
	}
	return reply, nil
}

// Close shuts the MCP session (and child process) down. Idempotent.
func (m *MCP) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.session.Close()
	})
	return m.closeErr
}
