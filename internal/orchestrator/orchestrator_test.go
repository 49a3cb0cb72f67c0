package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/christian-lee/lecturecast/internal/asr"
	"github.com/christian-lee/lecturecast/internal/display"
	"github.com/christian-lee/lecturecast/internal/events"
	"github.com/christian-lee/lecturecast/internal/history"
	"github.com/christian-lee/lecturecast/internal/paragraph"
	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/sentence"
	"github.com/christian-lee/lecturecast/internal/summary"
)

// echoHandler immediately "translates" by uppercasing nothing — it just
// returns the input text, letting tests assert on routing rather than
// translation quality.
type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, job queue.Job, onDelta queue.DeltaFunc) (string, error) {
	if onDelta != nil {
		onDelta(job.Text)
	}
	return job.Text, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, model, prompt, effort string) (string, error) {
	return "stub", nil
}

type capturingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *capturingSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *capturingSink) snapshot() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

func counter(prefix string) func() string {
	var n int64
	return func() string { return fmt.Sprintf("%s%d", prefix, atomic.AddInt64(&n, 1)) }
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *capturingSink, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	q := queue.New(ctx, queue.Config{}, func(queue.Job) (queue.Handler, bool) { return echoHandler{}, true }, nil)
	dm := display.New(display.Config{}, counter("pair_"), nil)
	sink := &capturingSink{}

	o := New(Deps{
		ASR:             asr.New(asr.Options{Endpoint: "ws://127.0.0.1:0/unreachable"}, nil),
		Queue:           q,
		Display:         dm,
		Sink:            sink,
		SummaryClient:   stubGenerator{},
		SentenceConfig:  sentence.Config{MinSegments: 1, MaxSegments: 1},
		ParagraphConfig: paragraph.Config{MinChunks: 1},
		HistoryConfig:   history.Config{MinSentencesPerBlock: 1, MaxSentencesPerBlock: 1},
		SummaryConfig:   summary.Config{ProgressiveThresholds: []int{1000000}},
		NextSentenceID:  counter("cs_"),
		NextParagraphID: counter("para_"),
		NextHistoryID:   counter("hb_"),
		NextSummaryID:   counter("sum_"),
	})

	return o, sink, cancel
}

func TestRegisterHandlerForRoutesByIDPrefix(t *testing.T) {
	realtime := echoHandler{}
	hist := multiDeltaHandler{}
	handlerFor := RegisterHandlerFor(realtime, hist)

	if h, ok := handlerFor(queue.Job{SegmentID: "history_abc"}); !ok || h != hist {
		t.Fatal("expected history_ prefix to route to the history handler")
	}
	if h, ok := handlerFor(queue.Job{SegmentID: "paragraph_abc"}); !ok || h != hist {
		t.Fatal("expected paragraph_ prefix to route to the history handler")
	}
	if h, ok := handlerFor(queue.Job{SegmentID: "manual_1"}); !ok || h != hist {
		t.Fatal("expected manual_ prefix to route to the history handler")
	}
	if h, ok := handlerFor(queue.Job{SegmentID: "seg_abc"}); !ok || h != realtime {
		t.Fatal("expected unprefixed segment ids to route to realtime handler")
	}
}

func TestGetStateStartsIdle(t *testing.T) {
	o, _, cancel := newTestOrchestrator(t)
	defer cancel()
	if o.GetState().State != "idle" {
		t.Fatalf("expected idle on construction, got %v", o.GetState().State)
	}
}

func TestPauseInvalidWhenIdle(t *testing.T) {
	o, _, cancel := newTestOrchestrator(t)
	defer cancel()
	if o.Pause("") {
		t.Fatal("expected pause to be rejected from idle")
	}
}

func TestTranslateUserInputUsesManualSegmentIDScheme(t *testing.T) {
	o, _, cancel := newTestOrchestrator(t)
	defer cancel()

	if err := o.TranslateUserInput("hello", "en", "ja"); err != nil {
		t.Fatalf("TranslateUserInput() error = %v", err)
	}

	select {
	case res := <-o.queue.Results():
		if res.Job.SegmentID[:7] != "manual_" {
			t.Fatalf("expected manual_ prefixed segment id, got %q", res.Job.SegmentID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for manual translation job to complete")
	}
}

func TestTranslateUserInputDefaultsToToSessionSourceLang(t *testing.T) {
	o, _, cancel := newTestOrchestrator(t)
	defer cancel()

	o.mu.Lock()
	o.sourceLang = "ja"
	o.mu.Unlock()

	if err := o.TranslateUserInput("hello", "en", ""); err != nil {
		t.Fatalf("TranslateUserInput() error = %v", err)
	}

	select {
	case res := <-o.queue.Results():
		if res.Job.TargetLang != "ja" {
			t.Fatalf("expected to to default to session source lang %q, got %q", "ja", res.Job.TargetLang)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for manual translation job to complete")
	}
}

func TestFeedFinalTranscriptEmitsASRAndEnqueuesTranslation(t *testing.T) {
	o, sink, cancel := newTestOrchestrator(t)
	defer cancel()

	o.FeedFinalTranscript("seg_1", "hello world.", 0.9, "en")

	deadline := time.After(2 * time.Second)
	for {
		found := false
		for _, e := range sink.snapshot() {
			if e.Kind == events.KindTranslation && e.Translation != nil && e.Translation.IsFinal {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a final translation event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sawASR := false
	for _, e := range sink.snapshot() {
		if e.Kind == events.KindASR && e.ASR.SegmentID == "seg_1" && e.ASR.IsFinal {
			sawASR = true
		}
	}
	if !sawASR {
		t.Fatal("expected an asr final event for seg_1")
	}
}

// multiDeltaHandler streams a job's text one rune at a time so tests
// can observe whether a consumer sees the raw per-call delta or the
// accumulated target text.
type multiDeltaHandler struct{}

func (multiDeltaHandler) Handle(_ context.Context, job queue.Job, onDelta queue.DeltaFunc) (string, error) {
	for _, r := range job.Text {
		if onDelta != nil {
			onDelta(string(r))
		}
	}
	return job.Text, nil
}

func TestFeedFinalTranscriptEmitsCumulativeTargetTextOnPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(ctx, queue.Config{}, func(queue.Job) (queue.Handler, bool) { return multiDeltaHandler{}, true }, nil)
	dm := display.New(display.Config{}, counter("pair_"), nil)
	sink := &capturingSink{}

	o := New(Deps{
		ASR:             asr.New(asr.Options{Endpoint: "ws://127.0.0.1:0/unreachable"}, nil),
		Queue:           q,
		Display:         dm,
		Sink:            sink,
		SummaryClient:   stubGenerator{},
		SentenceConfig:  sentence.Config{MinSegments: 1, MaxSegments: 1},
		ParagraphConfig: paragraph.Config{MinChunks: 1},
		HistoryConfig:   history.Config{MinSentencesPerBlock: 1, MaxSentencesPerBlock: 1},
		SummaryConfig:   summary.Config{ProgressiveThresholds: []int{1000000}},
		NextSentenceID:  counter("cs_"),
		NextParagraphID: counter("para_"),
		NextHistoryID:   counter("hb_"),
		NextSummaryID:   counter("sum_"),
	})

	o.FeedFinalTranscript("seg_1", "hi", 0.9, "en")

	deadline := time.After(2 * time.Second)
	var partials []string
	for {
		partials = nil
		for _, e := range sink.snapshot() {
			if e.Kind == events.KindTranslation && e.Translation != nil && !e.Translation.IsFinal && e.Translation.SegmentID == "seg_1" {
				partials = append(partials, e.Translation.TranslatedText)
			}
		}
		if len(partials) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for partial translation events, got %v", partials)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if partials[0] != "h" || partials[1] != "hi" {
		t.Fatalf("expected monotonically growing cumulative target text, got %v", partials)
	}
}

func TestClearHistoryResetsGrouperAndDisplay(t *testing.T) {
	o, _, cancel := newTestOrchestrator(t)
	defer cancel()

	o.hist.Add("s1", "a sentence.", "", time.Now())
	if len(o.hist.Blocks()) == 0 {
		t.Fatal("expected a block before clearing")
	}
	o.displayM.OnFinalTranscript("seg_1", "a sentence.")
	if len(o.displayM.Pairs()) == 0 {
		t.Fatal("expected a live display pair before clearing")
	}

	o.ClearHistory()

	if len(o.hist.Blocks()) != 0 {
		t.Fatal("expected history cleared")
	}
	if len(o.displayM.Pairs()) != 0 {
		t.Fatal("expected display pairs cleared")
	}
}
