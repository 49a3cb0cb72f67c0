// Command lecturecast is a demo CLI wiring the lecturecast pipeline
// end to end: it loads a session config, builds every component and
// the orchestrator, forwards raw PCM from stdin, prints every emitted
// event, and appends finalized transcript/translation pairs to a CSV
// file (§9). Grounded on the teacher's cmd/livesub/main.go run()
// function: config load, signal-driven graceful shutdown, and
// construct-then-subscribe wiring, generalized from a multi-room
// bilibili monitor loop to a single always-on session since
// lecturecast has no "room went live" concept to react to.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/christian-lee/lecturecast/internal/asr"
	"github.com/christian-lee/lecturecast/internal/command"
	"github.com/christian-lee/lecturecast/internal/config"
	"github.com/christian-lee/lecturecast/internal/display"
	"github.com/christian-lee/lecturecast/internal/events"
	"github.com/christian-lee/lecturecast/internal/metrics"
	"github.com/christian-lee/lecturecast/internal/orchestrator"
	"github.com/christian-lee/lecturecast/internal/queue"
	"github.com/christian-lee/lecturecast/internal/transcript"
	"github.com/christian-lee/lecturecast/internal/translate"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  lecturecast run [config]     Read 16-bit PCM from stdin and translate")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cfgPath := "config.yaml"
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		if err := run(cfgPath); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	hotCfg, err := config.NewHotConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := hotCfg.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	metricsProvider, shutdownMetrics, err := metrics.NewProvider("lecturecast")
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownMetrics(ctx)

	translateClient, err := translate.NewClient(ctx, cfg.Translation.APIKey, cfg.Translation.FallbackModel)
	if err != nil {
		return fmt.Errorf("init translate client: %w", err)
	}
	realtimeT := translate.NewRealtimeTranslator(translateClient, cfg.Translation.RealtimeModel)
	historyT := translate.NewHistoryTranslator(translateClient, cfg.Translation.HistoryModel)

	q := queue.New(ctx, cfg.QueueConfig(), orchestrator.RegisterHandlerFor(realtimeT, historyT), metricsProvider)

	asrAdapter := asr.New(cfg.ASROptions(), metricsProvider)
	displayModel := display.New(cfg.DisplayModelConfig(), idGen("pair_"), nil)

	correlationID := uuid.NewString()

	var sink events.Sink = events.SinkFunc(logEvent)
	if cfg.Output.TranscriptCSVPath != "" {
		tdir := filepath.Dir(cfg.Output.TranscriptCSVPath)
		tsink, err := transcript.NewSink(tdir, correlationID)
		if err != nil {
			slog.Warn("transcript sink init failed, continuing without", "err", err)
		} else {
			defer tsink.Close()
			slog.Info("transcript logging", "path", tsink.Path())
			sink = events.SinkFunc(func(e events.Event) {
				logEvent(e)
				tsink.Emit(e)
			})
		}
	}

	orch := orchestrator.New(orchestrator.Deps{
		ASR:             asrAdapter,
		Queue:           q,
		Display:         displayModel,
		Sink:            sink,
		SummaryClient:   translateClient,
		SentenceConfig:  cfg.SentenceCombinerConfig(),
		ParagraphConfig: cfg.ParagraphBuilderConfig(),
		HistoryConfig:   cfg.HistoryGrouperConfig(),
		SummaryConfig:   cfg.SummarizationEngineConfig(),
		NextSentenceID:  idGen("cs_"),
		NextParagraphID: idGen("para_"),
		NextHistoryID:   idGen("hb_"),
		NextSummaryID:   idGen("sum_"),
	})

	dispatcher := command.New(orch)

	hotCfg.OnReload(func(*config.Config) {
		slog.Info("tuning config reloaded; the running pipeline keeps the values it was built with")
	})
	hotCfg.Watch()

	if err := dispatcher.Dispatch(ctx, command.Command{
		Kind: command.KindStartListening, SourceLang: cfg.Session.SourceLang,
		TargetLang: cfg.Session.TargetLang, CorrelationID: correlationID,
	}); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	slog.Info("lecturecast started", "source_lang", cfg.Session.SourceLang,
		"target_lang", cfg.Session.TargetLang, "correlation_id", correlationID)

	go streamStdinPCM(ctx, orch)

	<-ctx.Done()
	_ = dispatcher.Dispatch(context.Background(), command.Command{Kind: command.KindStopListening, Reason: "shutdown"})
	return nil
}

// pcmSender is the subset of *orchestrator.Orchestrator streamStdinPCM
// needs; kept narrow so it stays trivially callable from main.
type pcmSender interface {
	SendAudio(frame []byte)
}

// streamStdinPCM forwards fixed-size PCM frames from stdin until ctx
// is cancelled or stdin is exhausted. A demo stand-in for a real
// microphone or file capture pipeline.
func streamStdinPCM(ctx context.Context, orch pcmSender) {
	const frameBytes = 640 // 20ms of 16kHz 16-bit mono (§6)
	r := bufio.NewReaderSize(os.Stdin, frameBytes*4)
	buf := make([]byte, frameBytes)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			orch.SendAudio(buf[:n])
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Warn("stdin read failed", "err", err)
			}
			return
		}
	}
}

func logEvent(e events.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		slog.Error("event marshal failed", "err", err)
		return
	}
	fmt.Println(string(b))
}

func idGen(prefix string) func() string {
	return func() string { return prefix + uuid.NewString() }
}
