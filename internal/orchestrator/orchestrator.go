// Package orchestrator implements the PipelineOrchestrator (spec
// §4.11): it owns every other component, wires their callbacks
// together, and is the sole producer of the outbound, totally ordered,
// correlation-id-stamped event stream.
//
// Grounded on the teacher's cmd/livesub/main.go "run" function, which
// is itself the wiring point between config, stt, translate, and the
// web/danmaku outputs — the same role this package's New/Start play,
// generalized from a one-shot CLI wiring into a long-lived, reusable
// orchestrator type so it can be driven by a control surface instead
// of only by main().
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/christian-lee/lecturecast/internal/asr"
	"github.com/christian-lee/lecturecast/internal/display"
	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/events"
	"github.com/christian-lee/lecturecast/internal/history"
	"github.com/christian-lee/lecturecast/internal/paragraph"
	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/sentence"
	"github.com/christian-lee/lecturecast/internal/state"
	"github.com/christian-lee/lecturecast/internal/summary"
)

// idPrefixHistory and idPrefixParagraph mark jobs routed to the
// HistoryTranslator rather than the RealtimeTranslator (§4.11).
const (
	idPrefixHistory   = "history_"
	idPrefixParagraph = "paragraph_"
	idPrefixManual    = "manual_"
)

// Config carries session-construction parameters (§6 start-listening).
type Config struct {
	SourceLang string
	TargetLang string
}

// Orchestrator owns every component and is the only producer of the
// outbound event stream.
type Orchestrator struct {
	asr        *asr.Adapter
	queue      *queue.Queue
	sentences  *sentence.Combiner
	paragraphs *paragraph.Builder
	displayM   *display.Model
	hist       *history.Grouper
	summaries  *summary.Engine
	machine    *state.Machine

	sink events.Sink

	mu         sync.Mutex
	sourceLang string
	targetLang string

	seq int64
}

// generator is the subset of the genai-backed translate client the
// SummarizationEngine needs; matches internal/translate.Client.Generate.
type generator interface {
	Generate(ctx context.Context, model, prompt, effort string) (string, error)
}

// Deps bundles the externally constructed collaborators the
// orchestrator wires together. Sentence/Paragraph/History/Summary are
// built internally by New, since they require callbacks that close
// over the orchestrator itself.
type Deps struct {
	ASR             *asr.Adapter
	Queue           *queue.Queue
	Display         *display.Model
	Sink            events.Sink
	SummaryClient   generator
	SentenceConfig  sentence.Config
	ParagraphConfig paragraph.Config
	HistoryConfig   history.Config
	SummaryConfig   summary.Config
	NextSentenceID  func() string
	NextParagraphID func() string
	NextHistoryID   func() string
	NextSummaryID   func() string
}

// New builds an Orchestrator in the Idle state and wires every
// component's callback into the outbound event stream.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		asr:      deps.ASR,
		queue:    deps.Queue,
		displayM: deps.Display,
		sink:     deps.Sink,
	}
	o.machine = state.New(o.onStateTransition)
	o.sentences = sentence.New(deps.SentenceConfig, o.onCombinedSentence, deps.NextSentenceID)
	o.paragraphs = paragraph.New(deps.ParagraphConfig, o.onParagraphComplete, deps.NextParagraphID)
	o.hist = history.New(deps.HistoryConfig,
		func(b *history.Block) { o.emitHistoryBlock(b, false) },
		func(b *history.Block) { o.emitHistoryBlock(b, true) },
		deps.NextHistoryID)
	o.summaries = summary.New(deps.SummaryConfig, deps.SummaryClient, o.emitSummary, deps.NextSummaryID)
	return o
}

func (o *Orchestrator) nextSeq() string {
	n := atomic.AddInt64(&o.seq, 1)
	return fmt.Sprintf("%s%d", idPrefixManual, n)
}

func (o *Orchestrator) correlationID() events.CorrelationID {
	return events.CorrelationID(o.machine.CorrelationID())
}

func (o *Orchestrator) emit(kind events.Kind, populate func(*events.Event)) {
	e := events.Event{Kind: kind, CorrelationID: o.correlationID(), EmittedAt: time.Now()}
	populate(&e)
	if o.sink != nil {
		o.sink.Emit(e)
	}
}

func (o *Orchestrator) onStateTransition(from, to state.State, reason string) {
	o.emit(events.KindStatus, func(e *events.Event) {
		e.Status = &events.StatusPayload{
			State:         string(to),
			PreviousState: string(from),
			UptimeMs:      o.machine.UptimeMs(),
		}
	})
}

// StartListening begins a session: connects ASR, starts the summary
// engine's periodic timer, and transitions idle->starting->listening
// (§4.10, §4.11).
func (o *Orchestrator) StartListening(ctx context.Context, sourceLang, targetLang, correlationID string) error {
	if !o.machine.StartListening(correlationID) {
		return errkind.New(errkind.InvalidState, "start-listening invalid from current state")
	}

	o.mu.Lock()
	o.sourceLang = sourceLang
	o.targetLang = targetLang
	o.mu.Unlock()

	if err := o.asr.Connect(ctx, sourceLang, 0); err != nil {
		o.machine.Transition(state.Error, "asr connect failed: "+err.Error())
		o.machine.Transition(state.Idle, "reset after connect failure")
		return err
	}

	go o.consumeASREvents(ctx)
	go o.consumeQueueResults(ctx)

	o.summaries.Start(ctx)

	o.machine.Transition(state.Listening, "asr connected")
	return nil
}

// StopListening flushes the sentence and paragraph buffers, disconnects
// ASR, stops the summary engine (which emits any final summary through
// its emit callback) and returns to idle (§5). Queued and running
// translation jobs are not waited for.
func (o *Orchestrator) StopListening(ctx context.Context, reason string) {
	if !o.machine.Transition(state.Stopping, reason) {
		return
	}

	o.sentences.ForceEmit()
	o.paragraphs.Flush()

	_ = o.asr.Disconnect(reason)
	o.summaries.Stop(ctx)

	o.machine.Transition(state.Idle, "drained")
}

// Pause stops forwarding PCM without tearing down ASR (§4.10).
func (o *Orchestrator) Pause(reason string) bool {
	ok := o.machine.Pause(reason)
	if ok {
		o.asr.Pause()
	}
	return ok
}

// Resume restores PCM forwarding.
func (o *Orchestrator) Resume(reason string) bool {
	ok := o.machine.Resume(reason)
	if ok {
		o.asr.Resume()
	}
	return ok
}

// SendAudio forwards a PCM frame only while the session is listening
// (§4.11); frames submitted at any other time are silently dropped.
func (o *Orchestrator) SendAudio(frame []byte) {
	if o.machine.Current() != state.Listening {
		return
	}
	o.asr.SendAudio(frame)
}

// GetState returns a point-in-time snapshot for the get-state command.
func (o *Orchestrator) GetState() state.Snapshot {
	return o.machine.Snap()
}

// QueueSnapshot exposes the translation queue's observability contract
// (§4.2) for get-state / diagnostics consumers.
func (o *Orchestrator) QueueSnapshot() queue.Snapshot {
	return o.queue.Snapshot()
}

// ClearHistory resets the history, display, and summary state (§6
// clear-history). The pipeline state machine is untouched.
func (o *Orchestrator) ClearHistory() {
	o.hist.Reset()
	o.summaries.Reset()
	o.displayM.Reset()
}

// GenerateVocabulary runs on-demand vocabulary extraction and emits the
// result (§4.9, §6 generate-vocabulary).
func (o *Orchestrator) GenerateVocabulary(ctx context.Context) error {
	items, err := o.summaries.ExtractVocabulary(ctx)
	if err != nil {
		o.emitError("vocabulary_failed", err.Error(), true)
		return err
	}
	payloadItems := make([]events.VocabularyItem, 0, len(items))
	for _, it := range items {
		payloadItems = append(payloadItems, events.VocabularyItem{Term: it.Term, Definition: it.Definition, Context: it.Context})
	}
	o.emit(events.KindVocabulary, func(e *events.Event) {
		e.Vocabulary = &events.VocabularyPayload{Items: payloadItems, TotalTerms: len(payloadItems)}
	})
	return nil
}

// GenerateFinalReport runs the on-demand final report and emits it
// (§4.9, §6 generate-final-report).
func (o *Orchestrator) GenerateFinalReport(ctx context.Context) error {
	report, vocabCount, err := o.summaries.GenerateFinalReport(ctx)
	if err != nil {
		o.emitError("report_failed", err.Error(), true)
		return err
	}
	blocks := o.hist.Blocks()
	wordCount := 0
	for _, b := range blocks {
		for _, s := range b.Sentences {
			wordCount += len(strings.Fields(s.Original))
		}
	}
	o.emit(events.KindFinalReport, func(e *events.Event) {
		e.FinalReport = &events.FinalReportPayload{
			ReportMarkdown:  report,
			TotalWordCount:  wordCount,
			SummaryCount:    o.summaries.SummaryCount(),
			VocabularyCount: vocabCount,
		}
	})
	return nil
}

// TranslateUserInput enqueues a one-off, manually-triggered translation
// job with target->source direction support (§6); to defaults to the
// session source language when the caller leaves it empty. Segment ids
// for manual jobs use the manual_<monotonic> scheme so they never
// collide with ASR-derived segment ids, and route to the
// HistoryTranslator tier like combined-sentence/paragraph jobs rather
// than the streaming realtime tier.
func (o *Orchestrator) TranslateUserInput(text, from, to string) error {
	if to == "" {
		to = o.getSourceLang()
	}
	job := queue.Job{
		SegmentID:       o.nextSeq(),
		Text:            text,
		SourceLang:      from,
		TargetLang:      to,
		Purpose:         "history",
		Priority:        queue.PriorityHigh,
		CorrelationID:   o.machine.CorrelationID(),
		ReasoningEffort: "minimal",
		OnDelta:         nil,
	}
	return o.queue.Enqueue(job)
}

// RegisterHandlerFor builds the queue.HandlerFor policy described in
// §4.11: segment ids prefixed history_/paragraph_/manual_ route to
// history, everything else (streaming ASR realtime jobs) to realtime.
func RegisterHandlerFor(realtime, historyH queue.Handler) queue.HandlerFor {
	return func(j queue.Job) (queue.Handler, bool) {
		if strings.HasPrefix(j.SegmentID, idPrefixHistory) ||
			strings.HasPrefix(j.SegmentID, idPrefixParagraph) ||
			strings.HasPrefix(j.SegmentID, idPrefixManual) {
			return historyH, true
		}
		return realtime, true
	}
}

// FeedFinalTranscript is the entry point for every ASR final: enqueues
// a realtime translation job and feeds both the SentenceCombiner and
// ParagraphBuilder (§4.11).
func (o *Orchestrator) FeedFinalTranscript(segmentID, text string, confidence float64, language string) {
	o.emit(events.KindASR, func(e *events.Event) {
		e.ASR = &events.ASRPayload{SegmentID: segmentID, Text: text, Confidence: confidence, IsFinal: true, Language: language}
	})

	o.displayM.OnFinalTranscript(segmentID, text)

	corrID := o.machine.CorrelationID()
	job := queue.Job{
		SegmentID:       segmentID,
		Text:            text,
		SourceLang:      o.getSourceLang(),
		TargetLang:      o.getTargetLang(),
		Purpose:         "realtime",
		Priority:        queue.PriorityNormal,
		CorrelationID:   corrID,
		ReasoningEffort: "minimal",
		OnDelta: func(delta string) {
			cumulative := delta
			if p := o.displayM.ApplyTranslationDelta(segmentID, delta); p != nil {
				cumulative = p.Target.Text
			}
			o.emit(events.KindTranslation, func(e *events.Event) {
				e.Translation = &events.TranslationPayload{
					SegmentID: segmentID, OriginalText: text, TranslatedText: cumulative,
					SourceLanguage: o.getSourceLang(), TargetLanguage: o.getTargetLang(), IsFinal: false,
				}
			})
		},
	}
	if err := o.queue.Enqueue(job); err != nil {
		o.emitQueueError(err, segmentID)
	}

	o.sentences.AddFinal(segmentID, text, corrID)
	o.paragraphs.AddSentence(segmentID, text, corrID)
}

// FeedInterimTranscript forwards a non-final ASR result to the
// realtime display; interim segments are never enqueued for
// translation (§4.7).
func (o *Orchestrator) FeedInterimTranscript(segmentID, text string, confidence float64, language string) {
	o.emit(events.KindASR, func(e *events.Event) {
		e.ASR = &events.ASRPayload{SegmentID: segmentID, Text: text, Confidence: confidence, IsFinal: false, Language: language}
	})
	o.displayM.OnInterimTranscript(segmentID, text)
}

// onCombinedSentence enqueues a history-tier job and emits
// combined-sentence (§4.11).
func (o *Orchestrator) onCombinedSentence(cs sentence.CombinedSentence) {
	o.emit(events.KindCombinedSentence, func(e *events.Event) {
		e.CombinedSentence = &events.CombinedSentencePayload{
			CombinedID: cs.ID, SegmentIDs: cs.SegmentIDs, OriginalText: cs.Text,
			Timestamp: cs.EmittedAt, EndTimestamp: cs.EmittedAt, SegmentCount: len(cs.SegmentIDs),
		}
	})

	job := queue.Job{
		SegmentID:       idPrefixHistory + cs.ID,
		Text:            cs.Text,
		SourceLang:      o.getSourceLang(),
		TargetLang:      o.getTargetLang(),
		Purpose:         "history",
		Priority:        queue.PriorityLow,
		CorrelationID:   cs.CorrelationID,
		ReasoningEffort: "low",
	}
	if err := o.queue.Enqueue(job); err != nil {
		o.emitQueueError(err, job.SegmentID)
	}
	o.hist.Add(cs.ID, cs.Text, "", cs.EmittedAt)
}

// onParagraphComplete enqueues a history-tier job and emits
// paragraph-complete (§4.11).
func (o *Orchestrator) onParagraphComplete(p paragraph.Paragraph) {
	wordCount := len(strings.Fields(p.CleanedText))
	o.emit(events.KindParagraphComplete, func(e *events.Event) {
		e.Paragraph = &events.ParagraphPayload{
			ParagraphID: p.ID, SegmentIDs: p.SentenceIDs, RawText: p.RawText, CleanedText: p.CleanedText,
			StartTime: p.StartTime, EndTime: p.EndTime, DurationMs: p.EndTime.Sub(p.StartTime).Milliseconds(),
			WordCount: wordCount,
		}
	})

	job := queue.Job{
		SegmentID:       idPrefixParagraph + p.ID,
		Text:            p.CleanedText,
		SourceLang:      o.getSourceLang(),
		TargetLang:      o.getTargetLang(),
		Purpose:         "history",
		Priority:        queue.PriorityLow,
		CorrelationID:   p.CorrelationID,
		ReasoningEffort: "low",
	}
	if err := o.queue.Enqueue(job); err != nil {
		o.emitQueueError(err, job.SegmentID)
	}
	o.hist.AddParagraph(p.ID, p.CleanedText, "", p.EmittedAt)
}

func (o *Orchestrator) consumeQueueResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-o.queue.Results():
			if !ok {
				return
			}
			o.handleQueueResult(ctx, res)
		}
	}
}

func (o *Orchestrator) handleQueueResult(ctx context.Context, res queue.Result) {
	if res.Err != nil {
		o.emitError("translation_failed", res.Err.Error(), errkind.Recoverable(res.Err))
		return
	}

	isHistory := strings.HasPrefix(res.Job.SegmentID, idPrefixHistory) || strings.HasPrefix(res.Job.SegmentID, idPrefixParagraph)

	if isHistory {
		// History-tier results never had a prior asr(is_final=true) event
		// under this synthetic segment id (§8), so they surface only
		// through the history-block update path, not a top-level
		// translation event.
		id := strings.TrimPrefix(strings.TrimPrefix(res.Job.SegmentID, idPrefixHistory), idPrefixParagraph)
		o.hist.UpdateTranslation(id, res.Translated)
	} else {
		o.displayM.SetTranslationComplete(res.Job.SegmentID)
		o.emit(events.KindTranslation, func(e *events.Event) {
			e.Translation = &events.TranslationPayload{
				SegmentID: res.Job.SegmentID, OriginalText: res.Job.Text, TranslatedText: res.Translated,
				SourceLanguage: res.Job.SourceLang, TargetLanguage: res.Job.TargetLang, IsFinal: true,
			}
		})
	}

	o.summaries.AddFinalizedText(ctx, res.Job.Text)
}

func (o *Orchestrator) consumeASREvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.asr.Events():
			if !ok {
				return
			}
			o.handleASREvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleASREvent(ctx context.Context, ev asr.Event) {
	switch ev.Kind {
	case asr.EventTranscript:
		if ev.Segment.IsFinal {
			o.FeedFinalTranscript(ev.Segment.ID, ev.Segment.Text, ev.Segment.Confidence, o.getSourceLang())
		} else {
			o.FeedInterimTranscript(ev.Segment.ID, ev.Segment.Text, ev.Segment.Confidence, o.getSourceLang())
		}
	case asr.EventError:
		recoverable := errkind.Recoverable(ev.Err)
		o.emitError("asr_error", ev.Reason, recoverable)
		if !recoverable {
			o.machine.Transition(state.Error, ev.Reason)
			o.machine.Transition(state.Idle, "reset after non-recoverable asr error")
		}
	case asr.EventDisconnected:
		slog.Info("asr disconnected", "reason", ev.Reason)
	}
}

func (o *Orchestrator) emitSummary(s summary.Summary) {
	threshold := s.Threshold
	var thresholdPtr *int
	if threshold > 0 {
		thresholdPtr = &threshold
	}
	o.emit(events.KindSummary, func(e *events.Event) {
		e.Summary = &events.SummaryPayload{
			Kind: events.SummaryKind(s.Kind), Threshold: thresholdPtr,
			SourceText: s.SourceText, TargetText: s.TargetText, WordCount: s.WordCount,
			StartTs: s.StartTs, EndTs: s.EndTs,
		}
	})
}

func (o *Orchestrator) emitError(code, message string, recoverable bool) {
	o.emit(events.KindError, func(e *events.Event) {
		e.Error = &events.ErrorPayload{Code: code, Message: message, Recoverable: recoverable}
	})
}

func (o *Orchestrator) emitQueueError(err error, segmentID string) {
	o.emitError("enqueue_failed", fmt.Sprintf("%s: %v", segmentID, err), true)
}

func (o *Orchestrator) getSourceLang() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sourceLang
}

func (o *Orchestrator) getTargetLang() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.targetLang
}

func (o *Orchestrator) emitHistoryBlock(b *history.Block, updated bool) {
	sentences := make([]events.HistorySentence, 0, len(b.Sentences))
	for _, s := range b.Sentences {
		sentences = append(sentences, events.HistorySentence{
			ID: s.ID, Original: s.Original, Translation: s.Translation, Timestamp: s.Timestamp,
		})
	}
	kind := events.KindHistoryBlock
	if updated {
		kind = events.KindHistoryBlockUpdated
	}
	o.emit(kind, func(e *events.Event) {
		e.HistoryBlock = &events.HistoryBlockPayload{
			BlockID: b.ID, Kind: string(b.Kind), Sentences: sentences, CreatedAt: b.CreatedAt, Updated: updated,
		}
	})
}
