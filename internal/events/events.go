// Package events defines the outbound event stream emitted by the
// orchestrator: a single, totally ordered sequence of kebab-case-kinded
// events, each stamped with a correlation id and a monotonic timestamp.
package events

import "time"

// CorrelationID is an opaque, session-scoped identifier propagated on
// every emitted event. It is set exactly once per listening session.
type CorrelationID string

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindASR               Kind = "asr"
	KindTranslation        Kind = "translation"
	KindCombinedSentence   Kind = "combined-sentence"
	KindParagraphComplete  Kind = "paragraph-complete"
	KindSummary            Kind = "summary"
	KindVocabulary         Kind = "vocabulary"
	KindFinalReport        Kind = "final-report"
	KindStatus             Kind = "status"
	KindError              Kind = "error"
	KindHistoryBlock        Kind = "history-block"
	KindHistoryBlockUpdated Kind = "history-block-updated"
)

// Event is the single tagged-union envelope every domain change is
// surfaced through. Exactly one of the Payload fields is populated,
// matching Kind. Consumers exhaustively match on Kind.
type Event struct {
	Kind          Kind          `json:"kind"`
	CorrelationID CorrelationID `json:"correlation_id"`
	EmittedAt     time.Time     `json:"emitted_at"`

	ASR              *ASRPayload              `json:"asr,omitempty"`
	Translation      *TranslationPayload      `json:"translation,omitempty"`
	CombinedSentence *CombinedSentencePayload `json:"combined_sentence,omitempty"`
	Paragraph        *ParagraphPayload        `json:"paragraph,omitempty"`
	Summary          *SummaryPayload          `json:"summary,omitempty"`
	Vocabulary       *VocabularyPayload       `json:"vocabulary,omitempty"`
	FinalReport      *FinalReportPayload      `json:"final_report,omitempty"`
	Status           *StatusPayload           `json:"status,omitempty"`
	Error            *ErrorPayload            `json:"error,omitempty"`
	HistoryBlock     *HistoryBlockPayload     `json:"history_block,omitempty"`
}

type ASRPayload struct {
	SegmentID  string  `json:"segment_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Language   string  `json:"language"`
}

type TranslationPayload struct {
	SegmentID      string  `json:"segment_id"`
	OriginalText   string  `json:"original_text"`
	TranslatedText string  `json:"translated_text"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language"`
	Confidence     float64 `json:"confidence"`
	IsFinal        bool    `json:"is_final"`
}

type CombinedSentencePayload struct {
	CombinedID     string    `json:"combined_id"`
	SegmentIDs     []string  `json:"segment_ids"`
	OriginalText   string    `json:"original_text"`
	Timestamp      time.Time `json:"timestamp"`
	EndTimestamp   time.Time `json:"end_timestamp"`
	SegmentCount   int       `json:"segment_count"`
}

type ParagraphPayload struct {
	ParagraphID string    `json:"paragraph_id"`
	SegmentIDs  []string  `json:"segment_ids"`
	RawText     string    `json:"raw_text"`
	CleanedText string    `json:"cleaned_text"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DurationMs  int64     `json:"duration_ms"`
	WordCount   int       `json:"word_count"`
}

// SummaryKind distinguishes progressive, periodic, and final summaries.
type SummaryKind string

const (
	SummaryProgressive SummaryKind = "progressive"
	SummaryPeriodic    SummaryKind = "periodic"
	SummaryFinal       SummaryKind = "final"
)

type SummaryPayload struct {
	Kind       SummaryKind `json:"kind"`
	Threshold  *int        `json:"threshold,omitempty"`
	SourceText string      `json:"source_text"`
	TargetText string      `json:"target_text"`
	WordCount  int         `json:"word_count"`
	StartTs    time.Time   `json:"start_ts"`
	EndTs      time.Time   `json:"end_ts"`
}

type VocabularyItem struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Context    string `json:"context,omitempty"`
}

type VocabularyPayload struct {
	Items      []VocabularyItem `json:"items"`
	TotalTerms int              `json:"total_terms"`
}

type FinalReportPayload struct {
	ReportMarkdown  string `json:"report_markdown"`
	TotalWordCount  int    `json:"total_word_count"`
	SummaryCount    int    `json:"summary_count"`
	VocabularyCount int    `json:"vocabulary_count"`
}

type StatusPayload struct {
	State         string `json:"state"`
	PreviousState string `json:"previous_state"`
	UptimeMs      int64  `json:"uptime_ms"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Details     string `json:"details,omitempty"`
}

type HistoryBlockPayload struct {
	BlockID   string              `json:"block_id"`
	Kind      string              `json:"kind"` // "sentences" | "paragraph"
	Sentences []HistorySentence   `json:"sentences"`
	CreatedAt time.Time           `json:"created_at"`
	Updated   bool                `json:"updated"`
}

type HistorySentence struct {
	ID          string    `json:"id"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives a totally ordered event stream. The orchestrator is the
// only producer; components never call a Sink directly — they expose
// their own outbound channels which the orchestrator subscribes to (§9).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }
