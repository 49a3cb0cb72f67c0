// Package translate implements RealtimeTranslator and HistoryTranslator
// (spec §4.3): both call google.golang.org/genai, both implement
// queue.Handler, and both apply the same output-cleaning rules to
// strip model "thinking" preambles from the returned text. Realtime
// streams token deltas for low latency; History makes one higher-
// quality call with a longer prompt.
//
// Grounded directly on the teacher's internal/translate/gemini.go
// (genai.NewClient/ClientConfig, Models.GenerateContent call shape,
// fallback-model-on-429/503 degradation). Streaming and reasoning-
// effort hints are new: the teacher only does single-shot calls, so
// those additions are built from the genai SDK's
// Models.GenerateContentStream iterator and GenerateContentConfig's
// ThinkingConfig, following the {ReasoningEffort string} hint pattern
// seen in other_examples' llmstream.go.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/queue"
)

// Purpose distinguishes the two translation tiers for prompt selection.
const (
	PurposeRealtime = "realtime"
	PurposeHistory  = "history"
)

// promptKey selects a template by source/target/purpose.
type promptKey struct {
	Source  string
	Target  string
	Purpose string
}

// promptTemplates holds compile-time prompt scaffolding per
// {source_lang, target_lang, purpose}; %s placeholders are filled with
// (source label, target label, text). Falls back to an English-
// scaffolded generic template when no specific entry exists (§9).
var promptTemplates = map[promptKey]string{
	{Source: "ja", Target: "en", Purpose: PurposeRealtime}: "Translate the following Japanese lecture fragment to English. " +
		"Output ONLY the translation, nothing else. Keep it concise and natural for live captions. " +
		"Render proper nouns and person names in romaji rather than translating them.\n\n%[3]s",
	{Source: "ja", Target: "en", Purpose: PurposeHistory}: "Translate the following Japanese lecture passage to English as a polished, complete passage. " +
		"Preserve technical terminology and speaker intent. Output ONLY the translation.\n\n%[3]s",
}

const fallbackRealtimeTemplate = "Translate the following %[1]s text to %[2]s. " +
	"Output ONLY the translation, nothing else. Keep it natural and concise, suitable for live captions.\n\n%[3]s"

const fallbackHistoryTemplate = "Translate the following %[1]s passage to %[2]s as a complete, polished passage suitable " +
	"for a written lecture transcript. Preserve technical terminology. Output ONLY the translation.\n\n%[3]s"

func buildPrompt(purpose, sourceLang, targetLang, text string) string {
	key := promptKey{Source: sourceLang, Target: targetLang, Purpose: purpose}
	if tmpl, ok := promptTemplates[key]; ok {
		return fmt.Sprintf(tmpl, sourceLang, targetLang, text)
	}
	if purpose == PurposeHistory {
		return fmt.Sprintf(fallbackHistoryTemplate, sourceLang, targetLang, text)
	}
	return fmt.Sprintf(fallbackRealtimeTemplate, sourceLang, targetLang, text)
}

// thinkingBudget maps a reasoning-effort hint to a genai thinking
// token budget; empty/unknown effort disables extended thinking.
func thinkingBudget(effort string) *int32 {
	var budget int32
	switch strings.ToLower(effort) {
	case "low":
		budget = 512
	case "medium":
		budget = 2048
	case "high":
		budget = 8192
	default:
		return nil
	}
	return &budget
}

// metaPreamblePrefixes is the fixed set of leading lines models
// sometimes emit before the actual translation when asked to "think"
// about the answer (§4.3); the cleaning pass keeps only the last
// non-empty line when the response's first non-empty line starts with
// one of them.
var metaPreamblePrefixes = []string{
	"note:", "wait:", "hmm", "let's output", "i'll output", "i'll choose",
	"i'll render", "output only", "but requirement says", "better to render as",
}

// CleanOutput strips model meta-thought preambles from a response,
// keeping only the last non-empty line when a preamble is detected,
// and trims surrounding whitespace/quotes (§4.3).
func CleanOutput(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var nonEmpty []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	if len(nonEmpty) > 1 && hasMetaPreamble(nonEmpty[0]) {
		text = nonEmpty[len(nonEmpty)-1]
	} else {
		text = strings.Join(nonEmpty, " ")
	}
	text = strings.Trim(text, "\"'“”‘’ ")
	return text
}

func hasMetaPreamble(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range metaPreamblePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Client wraps a genai client with the fallback-model degradation idiom
// from the teacher's GeminiTranslator.
type Client struct {
	client        *genai.Client
	fallbackModel string
	degraded      atomic.Bool
}

// NewClient constructs a genai-backed client.
func NewClient(ctx context.Context, apiKey, fallbackModel string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if fallbackModel == "" {
		fallbackModel = "gemini-2.0-flash"
	}
	return &Client{client: c, fallbackModel: fallbackModel}, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "503") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "UNAVAILABLE")
}

// RealtimeTranslator streams token-by-token translation deltas through
// queue.DeltaFunc for low perceived latency (§4.3).
type RealtimeTranslator struct {
	c     *Client
	model string
}

func NewRealtimeTranslator(c *Client, model string) *RealtimeTranslator {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &RealtimeTranslator{c: c, model: model}
}

func (t *RealtimeTranslator) Handle(ctx context.Context, job queue.Job, onDelta queue.DeltaFunc) (string, error) {
	text := strings.TrimSpace(job.Text)
	if text == "" {
		return "", nil
	}
	prompt := buildPrompt(PurposeRealtime, job.SourceLang, job.TargetLang, text)
	return t.stream(ctx, t.model, prompt, job.ReasoningEffort, onDelta, true)
}

func (t *RealtimeTranslator) stream(ctx context.Context, model, prompt, effort string, onDelta queue.DeltaFunc, allowFallback bool) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if b := thinkingBudget(effort); b != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: b}
	}

	var sb strings.Builder
	for resp, err := range t.c.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), cfg) {
		if err != nil {
			if allowFallback && isRetryable(err) && model != t.c.fallbackModel {
				t.c.degraded.Store(true)
				slog.Warn("realtime translate rate limited, falling back", "from", model, "to", t.c.fallbackModel)
				return t.stream(ctx, t.c.fallbackModel, prompt, effort, onDelta, false)
			}
			return "", errkind.Wrap(errkind.Transport, err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	return CleanOutput(sb.String()), nil
}

// Generate performs a single-shot genai call for non-translation
// callers that still need the fallback-model degradation idiom and a
// reasoning-effort hint: SummarizationEngine's summary, vocabulary, and
// final-report calls (§4.9).
func (c *Client) Generate(ctx context.Context, model, prompt, effort string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if b := thinkingBudget(effort); b != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: b}
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		if isRetryable(err) && model != c.fallbackModel {
			c.degraded.Store(true)
			slog.Warn("generate rate limited, falling back", "from", model, "to", c.fallbackModel)
			resp, err = c.client.Models.GenerateContent(ctx, c.fallbackModel, genai.Text(prompt), cfg)
			if err != nil {
				return "", errkind.Wrap(errkind.Transport, err)
			}
		} else {
			return "", errkind.Wrap(errkind.Transport, err)
		}
	}
	return CleanOutput(resp.Text()), nil
}

// HistoryTranslator makes a single, higher-quality call with a longer
// prompt for final/history-tier segments (§4.3, §4.11).
type HistoryTranslator struct {
	c     *Client
	model string
}

func NewHistoryTranslator(c *Client, model string) *HistoryTranslator {
	if model == "" {
		model = "gemini-2.5-pro"
	}
	return &HistoryTranslator{c: c, model: model}
}

func (t *HistoryTranslator) Handle(ctx context.Context, job queue.Job, onDelta queue.DeltaFunc) (string, error) {
	text := strings.TrimSpace(job.Text)
	if text == "" {
		return "", nil
	}
	prompt := buildPrompt(PurposeHistory, job.SourceLang, job.TargetLang, text)
	return t.generate(ctx, t.model, prompt, job.ReasoningEffort, true)
}

func (t *HistoryTranslator) generate(ctx context.Context, model, prompt, effort string, allowFallback bool) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if b := thinkingBudget(effort); b != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: b}
	}

	resp, err := t.c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		if allowFallback && isRetryable(err) && model != t.c.fallbackModel {
			t.c.degraded.Store(true)
			slog.Warn("history translate rate limited, falling back", "from", model, "to", t.c.fallbackModel)
			return t.generate(ctx, t.c.fallbackModel, prompt, effort, false)
		}
		return "", errkind.Wrap(errkind.Transport, err)
	}
	return CleanOutput(resp.Text()), nil
}
