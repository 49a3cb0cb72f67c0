package command

import (
	"context"
	"errors"
	"testing"

	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/state"
)

type stubOrchestrator struct {
	startErr      error
	pauseOK       bool
	resumeOK      bool
	vocabErr      error
	reportErr     error
	translateErr  error
	stopped       bool
	cleared       bool
	startedWith   [3]string
	translatedArg [3]string
}

func (s *stubOrchestrator) StartListening(_ context.Context, sourceLang, targetLang, correlationID string) error {
	s.startedWith = [3]string{sourceLang, targetLang, correlationID}
	return s.startErr
}
func (s *stubOrchestrator) StopListening(_ context.Context, reason string) { s.stopped = true }
func (s *stubOrchestrator) Pause(reason string) bool                      { return s.pauseOK }
func (s *stubOrchestrator) Resume(reason string) bool                     { return s.resumeOK }
func (s *stubOrchestrator) ClearHistory()                                 { s.cleared = true }
func (s *stubOrchestrator) GenerateVocabulary(_ context.Context) error    { return s.vocabErr }
func (s *stubOrchestrator) GenerateFinalReport(_ context.Context) error   { return s.reportErr }
func (s *stubOrchestrator) TranslateUserInput(text, from, to string) error {
	s.translatedArg = [3]string{text, from, to}
	return s.translateErr
}
func (s *stubOrchestrator) GetState() state.Snapshot         { return state.Snapshot{} }
func (s *stubOrchestrator) QueueSnapshot() queue.Snapshot    { return queue.Snapshot{} }

func TestDispatchStartListeningForwardsArgs(t *testing.T) {
	o := &stubOrchestrator{}
	d := New(o)

	if err := d.Dispatch(context.Background(), Command{
		Kind: KindStartListening, SourceLang: "ja", TargetLang: "en", CorrelationID: "corr-1",
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if o.startedWith != [3]string{"ja", "en", "corr-1"} {
		t.Fatalf("unexpected args passed to StartListening: %+v", o.startedWith)
	}
}

func TestDispatchPauseRejectedSurfacesError(t *testing.T) {
	o := &stubOrchestrator{pauseOK: false}
	d := New(o)

	err := d.Dispatch(context.Background(), Command{Kind: KindPause})
	if err == nil {
		t.Fatal("expected an error when pause is rejected")
	}
}

func TestDispatchResumeSucceeds(t *testing.T) {
	o := &stubOrchestrator{resumeOK: true}
	d := New(o)
	if err := d.Dispatch(context.Background(), Command{Kind: KindResume}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func TestDispatchClearHistory(t *testing.T) {
	o := &stubOrchestrator{}
	d := New(o)
	if err := d.Dispatch(context.Background(), Command{Kind: KindClearHistory}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !o.cleared {
		t.Fatal("expected ClearHistory to be called")
	}
}

func TestDispatchGenerateVocabularyPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	o := &stubOrchestrator{vocabErr: wantErr}
	d := New(o)
	if err := d.Dispatch(context.Background(), Command{Kind: KindGenerateVocabulary}); !errors.Is(err, wantErr) {
		t.Fatalf("Dispatch() error = %v, want %v", err, wantErr)
	}
}

func TestDispatchTranslateUserInputForwardsArgs(t *testing.T) {
	o := &stubOrchestrator{}
	d := New(o)
	if err := d.Dispatch(context.Background(), Command{
		Kind: KindTranslateUserInput, Text: "hello", From: "en", To: "ja",
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if o.translatedArg != [3]string{"hello", "en", "ja"} {
		t.Fatalf("unexpected args passed to TranslateUserInput: %+v", o.translatedArg)
	}
}

func TestDispatchUnknownKindIsError(t *testing.T) {
	o := &stubOrchestrator{}
	d := New(o)
	if err := d.Dispatch(context.Background(), Command{Kind: "bogus"}); err == nil {
		t.Fatal("expected an error for an unknown command kind")
	}
}
