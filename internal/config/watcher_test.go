package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/christian-lee/lecturecast/internal/config"
)

func TestHotConfigReloadPreservesSessionFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", sampleYAML)

	hc, err := config.NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig() error = %v", err)
	}

	reloaded := make(chan *config.Config, 1)
	hc.OnReload(func(c *config.Config) { reloaded <- c })

	hc.Watch()

	// Rewrite with a different tuning value AND a different (ignored)
	// session language — only the tuning value should take effect.
	changed := strings.Replace(sampleYAML, "max_queue: 50", "max_queue: 60", 1)
	changed = strings.Replace(changed, "source_lang: ja", "source_lang: fr", 1)
	if err := os.WriteFile(path, []byte(changed), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if hc.Get().Queue.MaxQueue == 60 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a config reload")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if hc.Get().Session.SourceLang != "ja" {
		t.Errorf("expected session.source_lang preserved across reload, got %q", hc.Get().Session.SourceLang)
	}
}

func TestHotConfigGetReturnsLoadedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "config.yaml", sampleYAML)

	hc, err := config.NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig() error = %v", err)
	}
	if hc.Get().Translation.APIKey != "gemini-test" {
		t.Errorf("expected loaded config, got %+v", hc.Get().Translation)
	}
}
