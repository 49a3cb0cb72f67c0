// Package config loads the session-construction and tuning parameters
// for a lecturecast pipeline from a YAML file (§9: "configuration is
// passed in at construction and is immutable for the session"). The
// orchestrator itself never touches the filesystem; cmd/lecturecast
// loads a Config, converts it into the component-level Config values
// each package expects, and passes those to orchestrator.New.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/christian-lee/lecturecast/internal/asr"
	"github.com/christian-lee/lecturecast/internal/display"
	"github.com/christian-lee/lecturecast/internal/history"
	"github.com/christian-lee/lecturecast/internal/paragraph"
	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/sentence"
	"github.com/christian-lee/lecturecast/internal/summary"
)

// Config is the top-level YAML document.
type Config struct {
	Session     SessionConfig     `yaml:"session" json:"session"`
	ASR         ASRConfig         `yaml:"asr" json:"asr"`
	Translation TranslationConfig `yaml:"translation" json:"translation"`
	Queue       QueueConfig       `yaml:"queue" json:"queue"`
	Sentence    SentenceConfig    `yaml:"sentence" json:"sentence"`
	Paragraph   ParagraphConfig   `yaml:"paragraph" json:"paragraph"`
	Display     DisplayConfig     `yaml:"display" json:"display"`
	History     HistoryConfig     `yaml:"history" json:"history"`
	Summary     SummaryConfig     `yaml:"summary" json:"summary"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// SessionConfig picks the default source/target languages a new
// listening session starts with; changing either requires a new
// session rather than a hot reload (§9).
type SessionConfig struct {
	SourceLang string `yaml:"source_lang" json:"source_lang"`
	TargetLang string `yaml:"target_lang" json:"target_lang"`
}

// ASRConfig configures the streaming transcription adapter (§4.1, §6).
type ASRConfig struct {
	Endpoint       string   `yaml:"endpoint" json:"endpoint"`
	BearerToken    string   `yaml:"bearer_token" json:"bearer_token"`
	Model          string   `yaml:"model" json:"model"`
	InterimResults bool     `yaml:"interim_results" json:"interim_results"`
	EndpointingMs  int      `yaml:"endpointing_ms" json:"endpointing_ms"`
	UtteranceEndMs int      `yaml:"utterance_end_ms" json:"utterance_end_ms"`
	SmartFormat    bool     `yaml:"smart_format" json:"smart_format"`
	SampleRate     int      `yaml:"sample_rate" json:"sample_rate"`
	Channels       int      `yaml:"channels" json:"channels"`
	Encoding       string   `yaml:"encoding" json:"encoding"`
	AltLanguages   []string `yaml:"alt_languages" json:"alt_languages"`
	KeepAliveMs    int      `yaml:"keep_alive_ms" json:"keep_alive_ms"`
	MaxReconnects  int      `yaml:"max_reconnects" json:"max_reconnects"`
	DialTimeoutMs  int      `yaml:"dial_timeout_ms" json:"dial_timeout_ms"`
}

// TranslationConfig configures the genai-backed realtime and history
// translators plus the summarization engine's generator (§4.3, §4.9).
type TranslationConfig struct {
	APIKey          string `yaml:"api_key" json:"api_key"`
	RealtimeModel   string `yaml:"realtime_model" json:"realtime_model"`
	HistoryModel    string `yaml:"history_model" json:"history_model"`
	FallbackModel   string `yaml:"fallback_model" json:"fallback_model"`
	SummaryModel    string `yaml:"summary_model" json:"summary_model"`
	VocabularyModel string `yaml:"vocabulary_model" json:"vocabulary_model"`
	ReportModel     string `yaml:"report_model" json:"report_model"`
}

// QueueConfig tunes TranslationQueue limits (§4.2). Hot-reloadable.
type QueueConfig struct {
	MaxQueue         int `yaml:"max_queue" json:"max_queue"`
	MaxConcurrency   int `yaml:"max_concurrency" json:"max_concurrency"`
	RequestTimeoutMs int `yaml:"request_timeout_ms" json:"request_timeout_ms"`
}

// SentenceConfig tunes SentenceCombiner (§4.4). Hot-reloadable.
type SentenceConfig struct {
	MaxSegments         int `yaml:"max_segments" json:"max_segments"`
	MinSegments         int `yaml:"min_segments" json:"min_segments"`
	InactivityTimeoutMs int `yaml:"inactivity_timeout_ms" json:"inactivity_timeout_ms"`
}

// ParagraphConfig tunes ParagraphBuilder (§4.5). Hot-reloadable.
type ParagraphConfig struct {
	MinChunks          int `yaml:"min_chunks" json:"min_chunks"`
	MaxDurationMs      int `yaml:"max_duration_ms" json:"max_duration_ms"`
	SilenceThresholdMs int `yaml:"silence_threshold_ms" json:"silence_threshold_ms"`
}

// DisplayConfig tunes RealtimeDisplayModel fade/hold timing (§4.7).
// Hot-reloadable.
type DisplayConfig struct {
	TranslationHoldMs int `yaml:"translation_hold_ms" json:"translation_hold_ms"`
	MinDisplayMs      int `yaml:"min_display_ms" json:"min_display_ms"`
	FadeInMs          int `yaml:"fade_in_ms" json:"fade_in_ms"`
	FadeOutMs         int `yaml:"fade_out_ms" json:"fade_out_ms"`
}

// HistoryConfig tunes HistoryGrouper block sizing (§4.8). Hot-reloadable.
type HistoryConfig struct {
	MinSentencesPerBlock int `yaml:"min_sentences_per_block" json:"min_sentences_per_block"`
	MaxSentencesPerBlock int `yaml:"max_sentences_per_block" json:"max_sentences_per_block"`
	NaturalBreakGapMs    int `yaml:"natural_break_gap_ms" json:"natural_break_gap_ms"`
}

// SummaryConfig tunes SummarizationEngine thresholds (§4.9). Hot-reloadable.
type SummaryConfig struct {
	ProgressiveThresholds []int `yaml:"progressive_thresholds" json:"progressive_thresholds"`
	SummaryIntervalMs     int   `yaml:"summary_interval_ms" json:"summary_interval_ms"`
}

// OutputConfig configures the demo CLI's event sink, not a pipeline
// component.
type OutputConfig struct {
	TranscriptCSVPath string `yaml:"transcript_csv_path" json:"transcript_csv_path"`
}

// Load reads and defaults a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()

	// Resolve a relative transcript output path against the config
	// file's directory, same idiom as credential path resolution.
	if cfg.Output.TranscriptCSVPath != "" && !filepath.IsAbs(cfg.Output.TranscriptCSVPath) {
		cfg.Output.TranscriptCSVPath = filepath.Join(filepath.Dir(path), cfg.Output.TranscriptCSVPath)
	}

	return cfg, nil
}

// Save writes cfg back to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Session.SourceLang == "" {
		c.Session.SourceLang = "ja"
	}
	if c.Session.TargetLang == "" {
		c.Session.TargetLang = "en"
	}

	if c.ASR.SampleRate <= 0 {
		c.ASR.SampleRate = 16000
	}
	if c.ASR.Channels <= 0 {
		c.ASR.Channels = 1
	}
	if c.ASR.Encoding == "" {
		c.ASR.Encoding = "linear16"
	}
	if c.ASR.KeepAliveMs <= 0 {
		c.ASR.KeepAliveMs = 5000
	}
	if c.ASR.MaxReconnects <= 0 {
		c.ASR.MaxReconnects = 5
	}
	if c.ASR.DialTimeoutMs <= 0 {
		c.ASR.DialTimeoutMs = 10000
	}

	if c.Translation.RealtimeModel == "" {
		c.Translation.RealtimeModel = "gemini-2.0-flash"
	}
	if c.Translation.HistoryModel == "" {
		c.Translation.HistoryModel = "gemini-2.5-pro"
	}
	if c.Translation.FallbackModel == "" {
		c.Translation.FallbackModel = "gemini-2.0-flash"
	}
	if c.Translation.SummaryModel == "" {
		c.Translation.SummaryModel = "gemini-2.0-flash"
	}
	if c.Translation.VocabularyModel == "" {
		c.Translation.VocabularyModel = "gemini-2.0-flash"
	}
	if c.Translation.ReportModel == "" {
		c.Translation.ReportModel = "gemini-2.5-pro"
	}

	if c.Queue.MaxQueue <= 0 {
		c.Queue.MaxQueue = 100
	}
	if c.Queue.MaxConcurrency <= 0 {
		c.Queue.MaxConcurrency = 3
	}
	if c.Queue.RequestTimeoutMs <= 0 {
		c.Queue.RequestTimeoutMs = 30000
	}

	if c.Sentence.MaxSegments <= 0 {
		c.Sentence.MaxSegments = 10
	}
	if c.Sentence.MinSegments <= 0 {
		c.Sentence.MinSegments = 1
	}
	if c.Sentence.InactivityTimeoutMs <= 0 {
		c.Sentence.InactivityTimeoutMs = 2000
	}

	if c.Paragraph.MinChunks <= 0 {
		c.Paragraph.MinChunks = 15
	}
	if c.Paragraph.MaxDurationMs <= 0 {
		c.Paragraph.MaxDurationMs = 60000
	}
	if c.Paragraph.SilenceThresholdMs <= 0 {
		c.Paragraph.SilenceThresholdMs = 3000
	}

	if c.Display.TranslationHoldMs <= 0 {
		c.Display.TranslationHoldMs = 1500
	}
	if c.Display.MinDisplayMs <= 0 {
		c.Display.MinDisplayMs = 1500
	}
	if c.Display.FadeInMs <= 0 {
		c.Display.FadeInMs = 200
	}
	if c.Display.FadeOutMs <= 0 {
		c.Display.FadeOutMs = 300
	}

	if c.History.MinSentencesPerBlock <= 0 {
		c.History.MinSentencesPerBlock = 3
	}
	if c.History.MaxSentencesPerBlock <= 0 {
		c.History.MaxSentencesPerBlock = 5
	}
	if c.History.NaturalBreakGapMs <= 0 {
		c.History.NaturalBreakGapMs = 3000
	}

	if len(c.Summary.ProgressiveThresholds) == 0 {
		c.Summary.ProgressiveThresholds = []int{400, 800, 1600, 2400}
	}
	if c.Summary.SummaryIntervalMs <= 0 {
		c.Summary.SummaryIntervalMs = 600000
	}
}

// ASROptions converts to the AsrStreamAdapter's construction options.
func (c *Config) ASROptions() asr.Options {
	return asr.Options{
		Endpoint:          c.ASR.Endpoint,
		BearerToken:       c.ASR.BearerToken,
		Model:             c.ASR.Model,
		InterimResults:    c.ASR.InterimResults,
		EndpointingMs:     c.ASR.EndpointingMs,
		UtteranceEndMs:    c.ASR.UtteranceEndMs,
		SmartFormat:       c.ASR.SmartFormat,
		SampleRate:        c.ASR.SampleRate,
		Channels:          c.ASR.Channels,
		Encoding:          c.ASR.Encoding,
		Language:          c.Session.SourceLang,
		AltLanguages:      c.ASR.AltLanguages,
		KeepAliveInterval: time.Duration(c.ASR.KeepAliveMs) * time.Millisecond,
		MaxReconnects:     c.ASR.MaxReconnects,
		DialTimeout:       time.Duration(c.ASR.DialTimeoutMs) * time.Millisecond,
	}
}

// QueueConfig converts to the TranslationQueue's Config.
func (c *Config) QueueConfig() queue.Config {
	return queue.Config{
		MaxQueue:       c.Queue.MaxQueue,
		MaxConcurrency: c.Queue.MaxConcurrency,
		RequestTimeout: time.Duration(c.Queue.RequestTimeoutMs) * time.Millisecond,
	}
}

// SentenceCombinerConfig converts to the SentenceCombiner's Config.
func (c *Config) SentenceCombinerConfig() sentence.Config {
	return sentence.Config{
		MaxSegments:       c.Sentence.MaxSegments,
		MinSegments:       c.Sentence.MinSegments,
		InactivityTimeout: time.Duration(c.Sentence.InactivityTimeoutMs) * time.Millisecond,
	}
}

// ParagraphBuilderConfig converts to the ParagraphBuilder's Config.
func (c *Config) ParagraphBuilderConfig() paragraph.Config {
	return paragraph.Config{
		MinChunks:        c.Paragraph.MinChunks,
		MaxDuration:      time.Duration(c.Paragraph.MaxDurationMs) * time.Millisecond,
		SilenceThreshold: time.Duration(c.Paragraph.SilenceThresholdMs) * time.Millisecond,
	}
}

// DisplayModelConfig converts to the RealtimeDisplayModel's Config.
func (c *Config) DisplayModelConfig() display.Config {
	return display.Config{
		TranslationHoldMs: time.Duration(c.Display.TranslationHoldMs) * time.Millisecond,
		MinDisplayMs:      time.Duration(c.Display.MinDisplayMs) * time.Millisecond,
		FadeInMs:          time.Duration(c.Display.FadeInMs) * time.Millisecond,
		FadeOutMs:         time.Duration(c.Display.FadeOutMs) * time.Millisecond,
	}
}

// HistoryGrouperConfig converts to the HistoryGrouper's Config.
func (c *Config) HistoryGrouperConfig() history.Config {
	return history.Config{
		MinSentencesPerBlock: c.History.MinSentencesPerBlock,
		MaxSentencesPerBlock: c.History.MaxSentencesPerBlock,
		NaturalBreakGap:      time.Duration(c.History.NaturalBreakGapMs) * time.Millisecond,
	}
}

// SummarizationEngineConfig converts to the SummarizationEngine's Config.
func (c *Config) SummarizationEngineConfig() summary.Config {
	return summary.Config{
		ProgressiveThresholds: c.Summary.ProgressiveThresholds,
		SummaryInterval:       time.Duration(c.Summary.SummaryIntervalMs) * time.Millisecond,
		SourceLang:            c.Session.SourceLang,
		TargetLang:            c.Session.TargetLang,
		SummaryModel:          c.Translation.SummaryModel,
		VocabularyModel:       c.Translation.VocabularyModel,
		ReportModel:           c.Translation.ReportModel,
	}
}
