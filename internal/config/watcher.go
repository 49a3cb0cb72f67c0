package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HotConfig wraps a Config with hot-reload support for the tuning
// knobs only (queue limits, sentence/paragraph/display/history sizing,
// summary thresholds). Session, ASR, and Translation are frozen at the
// value the session was constructed with — changing a bearer token or
// a language requires starting a new session, never a reload (§9).
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(*Config)
}

func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback invoked with the updated Config
// whenever a tuning reload succeeds.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	next, err := Load(hc.path)
	if err != nil {
		slog.Error("config reload failed", "err", err)
		return
	}

	hc.mu.Lock()
	// Session-construction fields never change out from under a
	// running orchestrator; only the tuning sections are replaced.
	next.Session = hc.cfg.Session
	next.ASR = hc.cfg.ASR
	next.Translation = hc.cfg.Translation
	hc.cfg = next
	hc.mu.Unlock()

	slog.Info("config reloaded", "path", hc.path)
	for _, fn := range hc.subs {
		fn(next)
	}
}

// Watch starts watching the config file for changes.
func (hc *HotConfig) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("config watcher failed", "err", err)
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "err", err)
			}
		}
	}()

	if err := watcher.Add(hc.path); err != nil {
		slog.Error("watch config file failed", "path", hc.path, "err", err)
	}
}
