package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/christian-lee/lecturecast/internal/config"
)

const sampleYAML = `
session:
  source_lang: ja
  target_lang: en

asr:
  endpoint: wss://asr.example.com/v1/listen
  bearer_token: tok-test
  sample_rate: 16000

translation:
  api_key: gemini-test
  realtime_model: gemini-2.0-flash
  history_model: gemini-2.5-pro

queue:
  max_queue: 50
  max_concurrency: 4

summary:
  progressive_thresholds: [100, 200]
  summary_interval_ms: 60000

output:
  transcript_csv_path: transcript.csv
`

func writeTemp(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.SourceLang != "ja" || cfg.Session.TargetLang != "en" {
		t.Errorf("session langs: got %q/%q", cfg.Session.SourceLang, cfg.Session.TargetLang)
	}
	if cfg.ASR.Endpoint != "wss://asr.example.com/v1/listen" {
		t.Errorf("asr.endpoint: got %q", cfg.ASR.Endpoint)
	}
	if cfg.Queue.MaxQueue != 50 || cfg.Queue.MaxConcurrency != 4 {
		t.Errorf("queue limits not parsed: %+v", cfg.Queue)
	}
	if len(cfg.Summary.ProgressiveThresholds) != 2 || cfg.Summary.ProgressiveThresholds[1] != 200 {
		t.Errorf("summary thresholds not parsed: %v", cfg.Summary.ProgressiveThresholds)
	}
	if cfg.Output.TranscriptCSVPath != filepath.Join(dir, "transcript.csv") {
		t.Errorf("output path not resolved relative to config dir: %q", cfg.Output.TranscriptCSVPath)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", "{}")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.SourceLang != "ja" || cfg.Session.TargetLang != "en" {
		t.Errorf("expected default session langs, got %+v", cfg.Session)
	}
	if cfg.ASR.SampleRate != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.ASR.SampleRate)
	}
	if cfg.Queue.MaxConcurrency != 3 {
		t.Errorf("expected default max concurrency 3, got %d", cfg.Queue.MaxConcurrency)
	}
	if len(cfg.Summary.ProgressiveThresholds) != 4 {
		t.Errorf("expected default progressive thresholds, got %v", cfg.Summary.ProgressiveThresholds)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestASROptionsUsesSessionSourceLang(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", sampleYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	opts := cfg.ASROptions()
	if opts.Language != "ja" {
		t.Errorf("ASROptions().Language = %q, want %q", opts.Language, "ja")
	}
	if opts.BearerToken != "tok-test" {
		t.Errorf("ASROptions().BearerToken = %q", opts.BearerToken)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", sampleYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	outPath := filepath.Join(dir, "saved.yaml")
	if err := config.Save(outPath, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := config.Load(outPath)
	if err != nil {
		t.Fatalf("Load(saved) error = %v", err)
	}
	if reloaded.Translation.RealtimeModel != cfg.Translation.RealtimeModel {
		t.Errorf("round trip lost translation.realtime_model: got %q, want %q",
			reloaded.Translation.RealtimeModel, cfg.Translation.RealtimeModel)
	}
}
