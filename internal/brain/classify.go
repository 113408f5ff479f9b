// Package brain turns caller transcripts into decisions: it buffers
// transcript fragments per speaker, classifies each completed user turn as
// conversation or an actionable command, dispatches actionable turns to the
// executor, and keeps per-call memory for the operator summary.
package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/phonio-ai/phonio/internal/observe"
	"github.com/phonio-ai/phonio/pkg/provider/llm"
	"github.com/phonio-ai/phonio/pkg/types"
)

// Intent is the result of classifying a user turn.
type Intent string

const (
	// IntentConversation means the turn is small talk for the voice model.
	IntentConversation Intent = "conversation"

	// IntentAction means the turn is a command for the executor.
	IntentAction Intent = "action"
)

// Classification stages, used as metric attributes.
const (
	StageTrivial  = "trivial"
	StageVerb     = "verb"
	StagePhonetic = "phonetic"
	StageLLM      = "llm"
	StageFailOpen = "fail_open"
)

// classifierTimeout bounds the LLM round trip; heuristics must stay fast, so
// a slow classifier falls open to actionable rather than stalling the call.
const classifierTimeout = 5 * time.Second

const classifierSystemPrompt = `You decide whether a phone caller's sentence is a command for a computer assistant (open apps, search, send messages, control media) or ordinary conversation. Answer with exactly one word: YES if it is a command, NO otherwise.`

// Classifier decides whether a user turn is actionable. The heuristic stages
// (trivial phrases, imperative verbs, phonetic verb match) run first; only
// ambiguous turns reach the LLM.
type Classifier struct {
	trivial map[string]struct{}
	verbs   []string

	// llm is optional. When nil, ambiguous turns fail open to actionable.
	llm   llm.Provider
	model string

	metrics *observe.Metrics
}

// NewClassifier builds a classifier from the configured trivial phrases and
// imperative verbs. provider may be nil to disable the LLM stage.
func NewClassifier(verbs, trivial []string, provider llm.Provider, model string) *Classifier {
	trivialSet := make(map[string]struct{}, len(trivial))
	for _, p := range trivial {
		trivialSet[normalize(p)] = struct{}{}
	}
	normVerbs := make([]string, 0, len(verbs))
	for _, v := range verbs {
		if v = normalize(v); v != "" {
			normVerbs = append(normVerbs, v)
		}
	}
	return &Classifier{
		trivial: trivialSet,
		verbs:   normVerbs,
		llm:     provider,
		model:   model,
		metrics: observe.DefaultMetrics(),
	}
}

// Classify returns the intent for one completed user turn plus the stage that
// decided it. recent carries up to the last three turns for LLM context.
func (c *Classifier) Classify(ctx context.Context, utterance string, recent []Turn) (Intent, string) {
	intent, stage := c.classify(ctx, utterance, recent)
	c.metrics.RecordClassifierDecision(ctx, stage, string(intent))
	return intent, stage
}

func (c *Classifier) classify(ctx context.Context, utterance string, recent []Turn) (Intent, string) {
	norm := normalize(utterance)
	if norm == "" {
		return IntentConversation, StageTrivial
	}

	// Anything two characters or shorter ("ok", "no", "hm") is never a
	// command.
	if len(norm) <= 2 {
		return IntentConversation, StageTrivial
	}
	if _, ok := c.trivial[norm]; ok {
		return IntentConversation, StageTrivial
	}

	words := strings.Fields(norm)
	for _, w := range words {
		for _, v := range c.verbs {
			if w == v {
				return IntentAction, StageVerb
			}
		}
	}

	// STT often garbles the leading verb ("oben" for "open"); a phonetic
	// match on the first token catches those.
	if phoneticVerbMatch(words[0], c.verbs) {
		return IntentAction, StagePhonetic
	}

	if c.llm == nil {
		return IntentAction, StageFailOpen
	}

	start := time.Now()
	intent, err := c.classifyLLM(ctx, utterance, recent)
	c.metrics.ClassifierDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("classifier llm failed, treating turn as actionable", "err", err)
		return IntentAction, StageFailOpen
	}
	return intent, StageLLM
}

// classifyLLM asks the side-channel LLM for a YES/NO actionability verdict.
func (c *Classifier) classifyLLM(ctx context.Context, utterance string, recent []Turn) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	messages := make([]types.Message, 0, 4)
	for _, t := range lastN(recent, 3) {
		role := "user"
		if t.Speaker == SpeakerAssistant {
			role = "assistant"
		}
		messages = append(messages, types.Message{Role: role, Content: t.Text})
	}
	messages = append(messages, types.Message{Role: "user", Content: utterance})

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages:     messages,
		MaxTokens:    5,
	})
	if err != nil {
		return "", fmt.Errorf("brain: classify %q: %w", utterance, err)
	}
	if resp == nil {
		return IntentConversation, nil
	}

	verdict := strings.ToUpper(strings.TrimSpace(resp.Content))
	if strings.HasPrefix(verdict, "YES") {
		return IntentAction, nil
	}
	return IntentConversation, nil
}

// phoneticVerbMatch reports whether token sounds like any configured verb
// using double metaphone keys.
func phoneticVerbMatch(token string, verbs []string) bool {
	p1, s1 := matchr.DoubleMetaphone(token)
	if p1 == "" && s1 == "" {
		return false
	}
	for _, v := range verbs {
		p2, s2 := matchr.DoubleMetaphone(v)
		if p2 == "" && s2 == "" {
			continue
		}
		if p1 == p2 || (s1 != "" && s1 == s2) || (s1 != "" && s1 == p2) || (s2 != "" && p1 == s2) {
			return true
		}
	}
	return false
}

// normalize lowercases and strips punctuation so "Open Spotify!" and
// "open spotify" classify identically.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		case r == '\t', r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func lastN(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
