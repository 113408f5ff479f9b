package brain

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Speaker labels for turns.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Turn is one completed utterance in the conversation.
type Turn struct {
	Speaker string
	Text    string
	At      time.Time
}

// Memory holds the per-call conversation state: ordered turns, extracted
// entities, and the commands dispatched to the executor. It lives exactly as
// long as the call and is discarded on teardown; persistence of the terminal
// summary is the call store's job.
type Memory struct {
	mu       sync.Mutex
	turns    []Turn
	entities map[string][]string
	commands []string
}

// NewMemory returns an empty per-call memory.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string][]string)}
}

// AddTurn appends a completed turn.
func (m *Memory) AddTurn(speaker, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Speaker: speaker, Text: text, At: time.Now()})
}

// Turns returns a copy of all turns in order.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// AddEntity records a labelled value ("app" → "spotify"). Duplicate values
// under the same label are kept once.
func (m *Memory) AddEntity(label, value string) {
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.entities[label] {
		if v == value {
			return
		}
	}
	m.entities[label] = append(m.entities[label], value)
}

// Entities returns a copy of the entity map.
func (m *Memory) Entities() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.entities))
	for k, v := range m.entities {
		vals := make([]string, len(v))
		copy(vals, v)
		out[k] = vals
	}
	return out
}

// AddCommand records one dispatched actionable utterance.
func (m *Memory) AddCommand(utterance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, utterance)
}

// Commands returns a copy of all dispatched commands in order.
func (m *Memory) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Summary renders the operator-facing one-liner for this call. Extracted
// entities are appended so the operator sees collected numbers and names
// without reading the transcript.
func (m *Memory) Summary() string {
	cmds := m.Commands()
	if len(cmds) == 0 {
		return "no actionable commands"
	}
	s := "dispatched: " + strings.Join(cmds, "; ")

	entities := m.Entities()
	labels := make([]string, 0, len(entities))
	for label := range entities {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		vals := entities[label]
		if len(vals) > 3 {
			vals = vals[:3]
		}
		s += " | " + label + ": " + strings.Join(vals, ", ")
	}
	return s
}

// ExtractEntities scans one utterance for structured values worth keeping and
// records them. Currently phone numbers: runs of at least seven digits,
// tolerating spaces, dashes, dots, parentheses, and a leading plus.
func (m *Memory) ExtractEntities(text string) {
	for _, match := range phoneNumberPattern.FindAllString(text, -1) {
		digits := 0
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 7 {
			m.AddEntity("phone_numbers", strings.TrimSpace(match))
		}
	}
}

var phoneNumberPattern = regexp.MustCompile(`\+?[0-9][0-9 ().-]{5,}[0-9]`)
