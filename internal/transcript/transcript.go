// Package transcript is cmd/lecturecast's example event-stream
// consumer: an events.Sink that appends finalized transcript/
// translation pairs to a per-session CSV file. It is not a pipeline
// component — the orchestrator never imports it — it subscribes to the
// same outbound event stream any other consumer would.
//
// Grounded on the teacher's internal/transcript/logger.go: UTF-8 BOM
// header for spreadsheet compatibility, elapsed-time "timeline" column,
// flush-on-write. Generalized from one CSV file per bilibili room/name
// to one file per correlation id (a lecturecast session has no rooms),
// and from a direct Write(source, target) call to an events.Sink so it
// plugs into the same dispatch point as every other subscriber.
package transcript

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/christian-lee/lecturecast/internal/events"
)

// Sink writes an events.Event stream's finalized transcript and
// translation pairs to a CSV file. Safe for concurrent Emit calls.
type Sink struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	startTime time.Time

	pending map[string]*row // segment/block id -> partially filled row, awaiting its translation
}

type row struct {
	sourceLang, source string
	targetLang          string
}

// NewSink creates a transcript CSV file under dir, named by the
// session's correlation id and start time:
// <dir>/<correlation_id>_<date>_<time>.csv
func NewSink(dir, correlationID string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s_%s.csv", sanitize(correlationID), now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript file: %w", err)
	}

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "elapsed", "segment_id", "source_lang", "source", "target_lang", "translation"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush header: %w", err)
	}

	return &Sink{file: f, writer: w, startTime: now, pending: make(map[string]*row)}, nil
}

// Emit implements events.Sink. It tracks the original text from each
// KindASR final segment and writes a completed row once the matching
// KindTranslation final event for the same segment id arrives.
func (s *Sink) Emit(e events.Event) {
	switch e.Kind {
	case events.KindASR:
		if e.ASR == nil || !e.ASR.IsFinal {
			return
		}
		s.mu.Lock()
		s.pending[e.ASR.SegmentID] = &row{sourceLang: e.ASR.Language, source: e.ASR.Text}
		s.mu.Unlock()

	case events.KindTranslation:
		if e.Translation == nil || !e.Translation.IsFinal {
			return
		}
		s.mu.Lock()
		pr, ok := s.pending[e.Translation.SegmentID]
		if ok {
			delete(s.pending, e.Translation.SegmentID)
		}
		s.mu.Unlock()

		sourceLang, source := e.Translation.SourceLanguage, e.Translation.OriginalText
		if ok {
			sourceLang, source = pr.sourceLang, pr.source
		}
		s.write(e.Translation.SegmentID, sourceLang, source, e.Translation.TargetLanguage, e.Translation.TranslatedText)
	}
}

func (s *Sink) write(segmentID, sourceLang, source, targetLang, translated string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return
	}
	now := time.Now()
	elapsed := now.Sub(s.startTime)
	minutes := int(elapsed.Minutes())
	seconds := int(elapsed.Seconds()) % 60
	timeline := fmt.Sprintf("%d:%02d", minutes, seconds)

	if err := s.writer.Write([]string{now.Format("15:04:05"), timeline, segmentID, sourceLang, source, targetLang, translated}); err != nil {
		slog.Error("transcript write failed", "err", err)
		return
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		slog.Error("transcript flush failed", "err", err)
	}
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Path returns the CSV file's path.
func (s *Sink) Path() string {
	if s.file == nil {
		return ""
	}
	return s.file.Name()
}

func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "session"
	}
	return string(out)
}

// FileInfo describes one file found by ListFiles.
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}

// ListFiles returns every non-directory entry directly under dir,
// newest first; a missing dir yields an empty list.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime().Format("2006-01-02 15:04:05")})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime > files[j].ModTime })
	return files, nil
}
