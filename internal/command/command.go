// Package command dispatches the control surface's inbound commands
// (§6: start-listening, stop-listening, pause, resume, clear-history,
// generate-vocabulary, generate-final-report, translate-user-input) to
// the PipelineOrchestrator. Grounded on the teacher's
// internal/command/handler.go switch-on-action dispatch shape,
// generalized from parsed danmaku text to a typed Command value since
// lecturecast's control surface is a structured API rather than a
// chat-room command prefix, and with the bilibili UID whitelist and
// bot-reply machinery dropped (no in-room reply channel in this
// domain).
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/state"
)

// Kind identifies an inbound control-surface command (§6).
type Kind string

const (
	KindStartListening      Kind = "start-listening"
	KindStopListening        Kind = "stop-listening"
	KindPause                Kind = "pause"
	KindResume               Kind = "resume"
	KindClearHistory         Kind = "clear-history"
	KindGenerateVocabulary   Kind = "generate-vocabulary"
	KindGenerateFinalReport  Kind = "generate-final-report"
	KindTranslateUserInput   Kind = "translate-user-input"
)

// Command is one inbound control-surface request. Only the fields
// relevant to Kind are read.
type Command struct {
	Kind          Kind
	SourceLang    string
	TargetLang    string
	CorrelationID string
	Reason        string
	Text          string
	From          string
	To            string
}

// orchestrator is the subset of PipelineOrchestrator the dispatcher
// drives; kept as a local interface (rather than depending on the
// concrete type) so it can be exercised with a stub in tests.
type orchestrator interface {
	StartListening(ctx context.Context, sourceLang, targetLang, correlationID string) error
	StopListening(ctx context.Context, reason string)
	Pause(reason string) bool
	Resume(reason string) bool
	ClearHistory()
	GenerateVocabulary(ctx context.Context) error
	GenerateFinalReport(ctx context.Context) error
	TranslateUserInput(text, from, to string) error
	GetState() state.Snapshot
	QueueSnapshot() queue.Snapshot
}

// Dispatcher routes Commands to an orchestrator, logging every
// execution the way the teacher logs every danmaku command it runs.
type Dispatcher struct {
	orch orchestrator
}

// New creates a Dispatcher bound to orch.
func New(orch orchestrator) *Dispatcher {
	return &Dispatcher{orch: orch}
}

// Dispatch executes cmd and returns an error for malformed input or a
// rejected transition; orchestrator-level failures (e.g. a failed
// generate-final-report call) are already surfaced as error events by
// the orchestrator and are also returned here for synchronous callers.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindStartListening:
		slog.Info("command: start-listening", "source_lang", cmd.SourceLang, "target_lang", cmd.TargetLang)
		return d.orch.StartListening(ctx, cmd.SourceLang, cmd.TargetLang, cmd.CorrelationID)

	case KindStopListening:
		slog.Info("command: stop-listening", "reason", cmd.Reason)
		d.orch.StopListening(ctx, cmd.Reason)
		return nil

	case KindPause:
		slog.Info("command: pause", "reason", cmd.Reason)
		if !d.orch.Pause(cmd.Reason) {
			return errkind.New(errkind.InvalidState, "pause rejected from current state")
		}
		return nil

	case KindResume:
		slog.Info("command: resume", "reason", cmd.Reason)
		if !d.orch.Resume(cmd.Reason) {
			return errkind.New(errkind.InvalidState, "resume rejected from current state")
		}
		return nil

	case KindClearHistory:
		slog.Info("command: clear-history")
		d.orch.ClearHistory()
		return nil

	case KindGenerateVocabulary:
		slog.Info("command: generate-vocabulary")
		return d.orch.GenerateVocabulary(ctx)

	case KindGenerateFinalReport:
		slog.Info("command: generate-final-report")
		return d.orch.GenerateFinalReport(ctx)

	case KindTranslateUserInput:
		slog.Info("command: translate-user-input", "from", cmd.From, "to", cmd.To)
		return d.orch.TranslateUserInput(cmd.Text, cmd.From, cmd.To)

	default:
		return errkind.New(errkind.Parse, fmt.Sprintf("unknown command kind %q", cmd.Kind))
	}
}
