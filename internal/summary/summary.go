// Package summary implements the SummarizationEngine (spec §4.9):
// progressive word-count-threshold summaries, a periodic summary on a
// wall-clock timer, a final summary on stop, on-demand vocabulary
// extraction, and an on-demand final report.
//
// Grounded on the teacher's internal/translate/gemini.go for the genai
// call shape (reused via internal/translate.Client.Generate);
// vocabulary JSON parsing uses github.com/tidwall/gjson with a
// bracket-substring fallback, following the tolerant-JSON idiom used
// for unstructured model output elsewhere in the pack (e.g.
// team-hashing-lokutor-orchestrator's provider response handling).
package summary

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/langmatch"
)

// generator is the subset of *translate.Client the engine needs: a
// single-shot call with a reasoning-effort hint. Accepting the
// interface rather than the concrete type lets tests exercise the
// engine's buffering/threshold logic without a real genai client.
type generator interface {
	Generate(ctx context.Context, model, prompt, effort string) (string, error)
}

const (
	KindProgressive = "progressive"
	KindPeriodic    = "periodic"
	KindFinal       = "final"
)

// Summary is the SummarizationEngine's output entity.
type Summary struct {
	ID         string
	Kind       string
	Threshold  int
	SourceText string
	TargetText string
	WordCount  int
	StartTs    time.Time
	EndTs      time.Time
}

// VocabItem is one extracted vocabulary term.
type VocabItem struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Context    string `json:"context,omitempty"`
}

// Config tunes the engine (§4.9).
type Config struct {
	ProgressiveThresholds []int
	SummaryInterval       time.Duration
	SourceLang            string
	TargetLang            string
	SummaryModel          string
	VocabularyModel       string
	ReportModel           string
}

func (c *Config) setDefaults() {
	if len(c.ProgressiveThresholds) == 0 {
		c.ProgressiveThresholds = []int{400, 800, 1600, 2400}
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = 600_000 * time.Millisecond
	}
	if c.SummaryModel == "" {
		c.SummaryModel = "gemini-2.0-flash"
	}
	if c.VocabularyModel == "" {
		c.VocabularyModel = "gemini-2.0-flash"
	}
	if c.ReportModel == "" {
		c.ReportModel = "gemini-2.5-pro"
	}
}

// isCJK reports whether lang is a language counted by character rather
// than by whitespace-delimited word (§4.9).
func isCJK(lang string) bool {
	switch langmatch.Canonicalize(lang) {
	case "zh", "ja":
		return true
	default:
		return false
	}
}

// countWords counts space-separated tokens for space-delimited
// languages, or non-punctuation characters for Japanese/Chinese (§4.9).
func countWords(text, lang string) int {
	if !isCJK(lang) {
		return len(strings.Fields(text))
	}
	n := 0
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		n++
	}
	return n
}

// Engine is the SummarizationEngine.
type Engine struct {
	cfg    Config
	client generator
	emit   func(Summary)
	nextID func() string

	mu             sync.Mutex
	cumulativeText strings.Builder
	cumulativeWords int
	periodicText   strings.Builder
	fired          map[int]bool
	emitted        []Summary
	sessionStart   time.Time

	active bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Engine. emit fires on every produced summary.
func New(cfg Config, client generator, emit func(Summary), nextID func() string) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:    cfg,
		client: client,
		emit:   emit,
		nextID: nextID,
		fired:  make(map[int]bool),
	}
}

// Start begins the periodic-summary timer.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return
	}
	e.active = true
	e.sessionStart = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.periodicLoop(runCtx)
}

func (e *Engine) periodicLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SummaryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitPeriodic(ctx)
		}
	}
}

func (e *Engine) emitPeriodic(ctx context.Context) {
	e.mu.Lock()
	text := e.periodicText.String()
	if strings.TrimSpace(text) == "" {
		e.mu.Unlock()
		return
	}
	e.periodicText.Reset()
	e.mu.Unlock()

	e.produce(ctx, KindPeriodic, 0, text)
}

// Stop halts the periodic timer and, if untriggered content remains,
// produces a final summary.
func (e *Engine) Stop(ctx context.Context) *Summary {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	e.active = false
	cancel := e.cancel
	text := e.periodicText.String()
	e.periodicText.Reset()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	if strings.TrimSpace(text) == "" {
		return nil
	}
	return e.produce(ctx, KindFinal, 0, text)
}

// AddFinalizedText appends finalized source text to both the
// cumulative buffer (for progressive thresholds and the final report)
// and the periodic buffer (cleared after each periodic/final emission).
// Crossing a progressive threshold triggers that summary immediately.
func (e *Engine) AddFinalizedText(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	e.mu.Lock()
	e.cumulativeText.WriteString(text)
	e.cumulativeText.WriteString(" ")
	e.periodicText.WriteString(text)
	e.periodicText.WriteString(" ")
	e.cumulativeWords = countWords(e.cumulativeText.String(), e.cfg.SourceLang)
	words := e.cumulativeWords
	cumulative := e.cumulativeText.String()

	var toFire int
	for _, th := range e.cfg.ProgressiveThresholds {
		if !e.fired[th] && words >= th {
			e.fired[th] = true
			toFire = th
			break
		}
	}
	e.mu.Unlock()

	if toFire > 0 {
		e.produce(ctx, KindProgressive, toFire, cumulative)
	}
}

// produce runs the summarize-then-maybe-translate pipeline and emits
// the result (§4.9 steps 1-3).
func (e *Engine) produce(ctx context.Context, kind string, threshold int, sourceContent string) *Summary {
	start := e.sessionStart
	end := time.Now()

	prompt := "Summarize the following lecture transcript in the source language, " +
		"concisely and faithfully, for a student reviewing the material:\n\n" + sourceContent
	sourceSummary, err := e.client.Generate(ctx, e.cfg.SummaryModel, prompt, "low")
	if err != nil {
		return nil
	}

	targetSummary := sourceSummary
	if !langmatch.Match(e.cfg.SourceLang, e.cfg.TargetLang) {
		tp := translatePrompt(sourceSummary, e.cfg.SourceLang, e.cfg.TargetLang)
		if out, terr := e.client.Generate(ctx, e.cfg.SummaryModel, tp, "minimal"); terr == nil {
			targetSummary = out
		}
	}

	s := Summary{
		ID:         e.nextID(),
		Kind:       kind,
		Threshold:  threshold,
		SourceText: sourceSummary,
		TargetText: targetSummary,
		WordCount:  countWords(sourceContent, e.cfg.SourceLang),
		StartTs:    start,
		EndTs:      end,
	}

	e.mu.Lock()
	e.emitted = append(e.emitted, s)
	e.mu.Unlock()

	if e.emit != nil {
		e.emit(s)
	}
	return &s
}

func translatePrompt(text, sourceLang, targetLang string) string {
	return "Translate the following summary from " + sourceLang + " to " + targetLang +
		". Output ONLY the translation.\n\n" + text
}

// ExtractVocabulary returns up to 10 salient terms, parsing the model's
// JSON output tolerantly; invalid output yields an empty list, not an
// error (§4.9).
func (e *Engine) ExtractVocabulary(ctx context.Context) ([]VocabItem, error) {
	e.mu.Lock()
	text := e.cumulativeText.String()
	e.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := "Extract at most 10 salient technical or domain-specific terms from this lecture transcript. " +
		"Respond with a JSON array of objects: [{\"term\":...,\"definition\":...,\"context\":...}].\n\n" + text
	out, err := e.client.Generate(ctx, e.cfg.VocabularyModel, prompt, "low")
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err)
	}

	items := parseVocabulary(out)
	if len(items) > 10 {
		items = items[:10]
	}
	return items, nil
}

// parseVocabulary parses a JSON array of vocabulary items, falling back
// to extracting the first [...] substring if the whole response isn't
// valid JSON, and returning an empty (not nil-error) list on failure.
func parseVocabulary(raw string) []VocabItem {
	items := tryParseVocabularyJSON(raw)
	if items != nil {
		return items
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		if items := tryParseVocabularyJSON(raw[start : end+1]); items != nil {
			return items
		}
	}
	return []VocabItem{}
}

func tryParseVocabularyJSON(raw string) []VocabItem {
	result := gjson.Parse(raw)
	if !result.IsArray() {
		return nil
	}
	var items []VocabItem
	ok := true
	result.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			ok = false
			return false
		}
		items = append(items, VocabItem{
			Term:       value.Get("term").String(),
			Definition: value.Get("definition").String(),
			Context:    value.Get("context").String(),
		})
		return true
	})
	if !ok {
		return nil
	}
	return items
}

// SummaryCount returns the number of summaries emitted so far, for the
// final report's summary_count field.
func (e *Engine) SummaryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.emitted)
}

// GenerateFinalReport combines all finalized source text, all emitted
// summaries' target-language text, and a fresh vocabulary extraction
// into a Markdown document, using the report model at high reasoning
// effort (§4.9). It returns the extracted vocabulary's length alongside
// the report so callers can populate a final-report event's
// vocabulary_count without a second extraction call.
func (e *Engine) GenerateFinalReport(ctx context.Context) (string, int, error) {
	e.mu.Lock()
	fullText := e.cumulativeText.String()
	summaries := append([]Summary(nil), e.emitted...)
	e.mu.Unlock()

	vocab, _ := e.ExtractVocabulary(ctx)

	var sb strings.Builder
	sb.WriteString("## Summaries\n\n")
	for _, s := range summaries {
		sb.WriteString("- ")
		sb.WriteString(s.TargetText)
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Vocabulary\n\n")
	for _, v := range vocab {
		sb.WriteString("- **" + v.Term + "**: " + v.Definition + "\n")
	}
	sb.WriteString("\n## Full Transcript\n\n")
	sb.WriteString(fullText)

	prompt := "Using the following lecture material, summaries, and vocabulary list, compose a complete, " +
		"well-structured Markdown report suitable for a student's notes:\n\n" + sb.String()
	report, err := e.client.Generate(ctx, e.cfg.ReportModel, prompt, "high")
	if err != nil {
		return "", 0, errkind.Wrap(errkind.Transport, err)
	}
	return report, len(vocab), nil
}

// Reset discards all accumulated state (used by clear-history).
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cumulativeText.Reset()
	e.periodicText.Reset()
	e.cumulativeWords = 0
	e.fired = make(map[int]bool)
	e.emitted = nil
}
