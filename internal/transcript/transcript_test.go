package transcript

import (
	"encoding/csv"
	"os"
	"testing"

	"github.com/christian-lee/lecturecast/internal/events"
)

func TestSinkWritesMatchedPairOnFinalTranslation(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "corr-1")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close()

	sink.Emit(events.Event{Kind: events.KindASR, ASR: &events.ASRPayload{
		SegmentID: "seg_1", Text: "hello", Language: "en", IsFinal: true,
	}})
	sink.Emit(events.Event{Kind: events.KindTranslation, Translation: &events.TranslationPayload{
		SegmentID: "seg_1", OriginalText: "hello", TranslatedText: "konnichiwa",
		SourceLanguage: "en", TargetLanguage: "ja", IsFinal: true,
	}})

	rows := readRows(t, sink.Path())
	if len(rows) != 2 { // header + one data row
		t.Fatalf("expected 1 data row, got %d total rows: %v", len(rows)-1, rows)
	}
	data := rows[1]
	if data[3] != "en" || data[4] != "hello" || data[5] != "ja" || data[6] != "konnichiwa" {
		t.Fatalf("unexpected row: %v", data)
	}
}

func TestSinkIgnoresInterimEvents(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "corr-2")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close()

	sink.Emit(events.Event{Kind: events.KindASR, ASR: &events.ASRPayload{SegmentID: "seg_1", IsFinal: false}})
	sink.Emit(events.Event{Kind: events.KindTranslation, Translation: &events.TranslationPayload{SegmentID: "seg_1", IsFinal: false}})

	rows := readRows(t, sink.Path())
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestSinkFallsBackToTranslationPayloadWhenNoASRSeen(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "corr-3")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close()

	sink.Emit(events.Event{Kind: events.KindTranslation, Translation: &events.TranslationPayload{
		SegmentID: "history_1", OriginalText: "full passage", TranslatedText: "translated passage",
		SourceLanguage: "ja", TargetLanguage: "en", IsFinal: true,
	}})

	rows := readRows(t, sink.Path())
	if len(rows) != 2 {
		t.Fatalf("expected 1 data row, got %d", len(rows)-1)
	}
	if rows[1][4] != "full passage" {
		t.Fatalf("expected fallback to translation payload's original text, got %q", rows[1][4])
	}
}

func TestListFilesReturnsEmptyForMissingDir(t *testing.T) {
	files, err := ListFiles("/nonexistent/path/for/lecturecast/test")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if files != nil {
		t.Fatalf("expected nil for a missing directory, got %v", files)
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open transcript file: %v", err)
	}
	defer f.Close()
	// Skip the UTF-8 BOM before handing off to encoding/csv.
	bom := make([]byte, 3)
	if _, err := f.Read(bom); err != nil {
		t.Fatalf("read bom: %v", err)
	}
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}
