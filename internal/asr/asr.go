// Package asr implements the AsrStreamAdapter (spec §4.1): it owns a
// streaming ASR WebSocket session and emits TranscriptSegment events,
// with reconnection/backoff and back-pressure handling on send_audio.
//
// The transport is gorilla/websocket rather than the teacher's gRPC
// Google Speech client, because the external interface (spec §6)
// describes a bearer-token WebSocket upstream addressed by query-string
// parameters and frame-level close codes — a Deepgram-shaped contract,
// not a gRPC one. The connect/reconnect idiom (exponential backoff,
// restart loop logged at each attempt) follows internal/agent/agent.go
// in the teacher repo.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/metrics"
)

// TranscriptSegment is one ASR output, final or interim (spec §3).
type TranscriptSegment struct {
	ID         string
	Text       string
	Confidence float64
	IsFinal    bool
	StartMs    *int64
	EndMs      *int64
	ReceivedAt time.Time
}

// EventKind identifies the shape of an adapter Event.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventTranscript   EventKind = "transcript"
	EventUtteranceEnd EventKind = "utterance_end"
	EventMetadata     EventKind = "metadata"
	EventError        EventKind = "error"
	EventDisconnected EventKind = "disconnected"
)

// Event is emitted on the adapter's Events channel.
type Event struct {
	Kind    EventKind
	Segment TranscriptSegment
	Reason  string
	Err     error
}

// connState is the adapter's own connection state, distinct from (but
// observed by) the session-wide PipelineStateMachine: send_audio is
// silently dropped whenever connState != listening, per §4.1.
type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateListening
	statePaused
	stateDisconnected
	stateError
)

// Options configures a streaming ASR session (spec §6).
type Options struct {
	Endpoint          string // base ws:// or wss:// URL, e.g. "wss://asr.example.com/v1/listen"
	BearerToken       string
	Model             string
	InterimResults    bool
	EndpointingMs     int
	UtteranceEndMs    int
	SmartFormat       bool
	SampleRate        int
	Channels          int
	Encoding          string
	Language          string
	AltLanguages      []string
	KeepAliveInterval time.Duration // default 5000ms
	MaxReconnects     int           // default 5
	DialTimeout       time.Duration
}

func (o *Options) setDefaults() {
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = 5000 * time.Millisecond
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 5
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	if o.Encoding == "" {
		o.Encoding = "linear16"
	}
}

// buildURL assembles the provider URL with the required query parameters
// from §6 (model, interim_results, endpointing_ms, utterance_end_ms,
// smart_format, sample_rate, channels, encoding, language).
func (o *Options) buildURL() (string, error) {
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	if o.Model != "" {
		q.Set("model", o.Model)
	}
	q.Set("interim_results", boolStr(o.InterimResults))
	q.Set("endpointing_ms", fmt.Sprintf("%d", orDefault(o.EndpointingMs, 800)))
	q.Set("utterance_end_ms", fmt.Sprintf("%d", orDefault(o.UtteranceEndMs, 1000)))
	q.Set("smart_format", boolStr(o.SmartFormat))
	q.Set("sample_rate", fmt.Sprintf("%d", o.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", o.Channels))
	q.Set("encoding", o.Encoding)
	if o.Language != "" {
		q.Set("language", o.Language)
	}
	for _, alt := range o.AltLanguages {
		q.Add("alt_language", alt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// audioQueueDepth bounds the outbound audio channel; send_audio drops
// the oldest undelivered frame rather than block the producer (§4.1,
// §5 back-pressure).
const audioQueueDepth = 64

// Adapter owns a single streaming ASR session.
type Adapter struct {
	opts    Options
	metrics *metrics.Provider

	mu      sync.Mutex
	state   connState
	conn    *websocket.Conn
	dialer  *websocket.Dialer
	audioCh chan []byte
	events  chan Event
	done    chan struct{}

	interimSeq  int
	currentID   string
	lastAudioAt time.Time
}

// New creates an Adapter. metricsProvider may be nil (tests).
func New(opts Options, metricsProvider *metrics.Provider) *Adapter {
	opts.setDefaults()
	return &Adapter{
		opts:    opts,
		metrics: metricsProvider,
		dialer:  websocket.DefaultDialer,
		events:  make(chan Event, 64),
	}
}

// Events returns the adapter's event channel. The channel is closed
// when Disconnect completes.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Connect establishes the provider session and starts the read/write
// loops. sourceLang and sampleRate override the configured options.
func (a *Adapter) Connect(ctx context.Context, sourceLang string, sampleRate int) error {
	a.mu.Lock()
	if sourceLang != "" {
		a.opts.Language = sourceLang
	}
	if sampleRate > 0 {
		a.opts.SampleRate = sampleRate
	}
	a.state = stateConnecting
	a.audioCh = make(chan []byte, audioQueueDepth)
	a.done = make(chan struct{})
	a.mu.Unlock()

	conn, err := a.dial(ctx)
	if err != nil {
		a.mu.Lock()
		a.state = stateError
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.state = stateListening
	a.lastAudioAt = time.Now()
	a.mu.Unlock()

	a.emit(Event{Kind: EventConnected})

	go a.writeLoop(ctx)
	go a.readLoop(ctx)
	go a.keepAliveLoop(ctx)

	return nil
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	addr, err := a.opts.buildURL()
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidState, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.opts.BearerToken)

	conn, resp, err := a.dialer.DialContext(dialCtx, addr, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errkind.New(errkind.Auth, fmt.Sprintf("asr dial rejected: %s", resp.Status))
		}
		return nil, errkind.Wrap(errkind.Transport, err)
	}
	return conn, nil
}

// SendAudio accepts a PCM frame. Silently dropped when not listening.
// Never blocks: if the outbound queue is saturated, the oldest
// undelivered frame is dropped and the drop is counted (§4.1, §5).
func (a *Adapter) SendAudio(frame []byte) {
	a.mu.Lock()
	state := a.state
	ch := a.audioCh
	a.lastAudioAt = time.Now()
	a.mu.Unlock()

	if state != stateListening || ch == nil {
		return
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case ch <- buf:
		return
	default:
	}

	// Saturated: drop the oldest frame, then enqueue this one.
	select {
	case <-ch:
		a.metrics.RecordDroppedFrame(context.Background())
	default:
	}
	select {
	case ch <- buf:
	default:
		// Still full (race with a concurrent sender) — drop this frame too.
		a.metrics.RecordDroppedFrame(context.Background())
	}
}

// Pause stops forwarding audio without tearing down the connection,
// used while the session-wide state machine is in "paused" (§4.10);
// resume with Resume.
func (a *Adapter) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateListening {
		a.state = statePaused
	}
}

func (a *Adapter) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == statePaused {
		a.state = stateListening
	}
}

// Disconnect gracefully closes the session.
func (a *Adapter) Disconnect(reason string) error {
	a.mu.Lock()
	conn := a.conn
	done := a.done
	a.state = stateDisconnected
	a.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		_ = conn.Close()
	}
	if done != nil {
		close(done)
	}
	a.emit(Event{Kind: EventDisconnected, Reason: reason})
	close(a.events)
	return nil
}

func (a *Adapter) emit(e Event) {
	select {
	case a.events <- e:
	default:
		// Consumer fell behind; per §5 interim-tier events may be
		// dropped before finals/errors, but this channel only ever
		// carries adapter-level events so we log instead of silently
		// losing a final or an error.
		slog.Warn("asr event channel saturated, blocking", "kind", e.Kind)
		a.events <- e
	}
}

func (a *Adapter) writeLoop(ctx context.Context) {
	a.mu.Lock()
	conn := a.conn
	audioCh := a.audioCh
	done := a.done
	a.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case frame, ok := <-audioCh:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				a.handleTransportError(ctx, err)
				return
			}
		}
	}
}

// keepAliveLoop sends a provider keep-alive control frame if no audio
// has been sent for KeepAliveInterval (§4.1).
func (a *Adapter) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.KeepAliveInterval / 2)
	defer ticker.Stop()

	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			a.mu.Lock()
			idle := time.Since(a.lastAudioAt)
			conn := a.conn
			listening := a.state == stateListening
			a.mu.Unlock()

			if !listening || conn == nil || idle < a.opts.KeepAliveInterval {
				continue
			}
			payload, _ := json.Marshal(map[string]string{"type": "KeepAlive"})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				a.handleTransportError(ctx, err)
				return
			}
			a.metrics.RecordKeepAlive(ctx)
			a.mu.Lock()
			a.lastAudioAt = time.Now()
			a.mu.Unlock()
		}
	}
}

// providerFrame is the observable wire shape of the ASR upstream (§6):
// a tagged JSON message carrying either a transcript result, an
// utterance-end marker, metadata, or an error.
type providerFrame struct {
	Type    string `json:"type"`
	Channel *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel,omitempty"`
	IsFinal  bool    `json:"is_final,omitempty"`
	Start    float64 `json:"start,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Message  string  `json:"message,omitempty"`
	CloseCode int    `json:"close_code,omitempty"`
}

func (a *Adapter) readLoop(ctx context.Context) {
	var partial bytes.Buffer

	reconnects := 0
	backoff := time.Second

	for {
		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.mu.Lock()
			listening := a.state == stateListening || a.state == statePaused
			a.mu.Unlock()
			if !listening {
				return
			}

			reconnects++
			if reconnects > a.opts.MaxReconnects {
				a.mu.Lock()
				a.state = stateError
				a.mu.Unlock()
				a.emit(Event{Kind: EventError, Err: errkind.New(errkind.Exhausted, "reconnects exhausted"), Reason: "reconnects_exhausted"})
				return
			}

			wait := jitter(backoff)
			slog.Warn("asr read failed, reconnecting", "err", err, "attempt", reconnects, "backoff", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			backoff = minDuration(backoff*2, 10*time.Second)

			// Discard pending interim state on reconnect (§4.1).
			partial.Reset()
			a.mu.Lock()
			a.currentID = ""
			a.mu.Unlock()

			newConn, derr := a.dial(ctx)
			if derr != nil {
				continue
			}
			a.mu.Lock()
			a.conn = newConn
			a.state = stateListening
			a.mu.Unlock()
			go a.writeLoop(ctx)
			continue
		}

		reconnects = 0
		backoff = time.Second

		partial.Write(data)
		if !utf8.Valid(partial.Bytes()) {
			// Wait for more bytes to complete the UTF-8 sequence.
			continue
		}

		var frame providerFrame
		if err := json.Unmarshal(partial.Bytes(), &frame); err != nil {
			a.emit(Event{Kind: EventError, Err: errkind.Wrap(errkind.Parse, err), Reason: "bad_provider_frame"})
			partial.Reset()
			continue
		}
		partial.Reset()

		a.handleFrame(frame)
	}
}

func (a *Adapter) handleFrame(frame providerFrame) {
	switch frame.Type {
	case "Results":
		if frame.Channel == nil || len(frame.Channel.Alternatives) == 0 {
			return
		}
		alt := frame.Channel.Alternatives[0]
		text := alt.Transcript
		if text == "" {
			return
		}
		conf := alt.Confidence

		a.mu.Lock()
		var id string
		if frame.IsFinal {
			id = "seg_" + uuid.NewString()
			a.currentID = ""
			a.interimSeq++
		} else {
			if a.currentID == "" {
				a.currentID = "int_" + uuid.NewString()
			}
			id = a.currentID
		}
		a.mu.Unlock()

		seg := TranscriptSegment{
			ID:         id,
			Text:       text,
			Confidence: conf,
			IsFinal:    frame.IsFinal,
			ReceivedAt: time.Now(),
		}
		if frame.Start > 0 {
			ms := int64(frame.Start * 1000)
			seg.StartMs = &ms
		}
		if frame.Duration > 0 && seg.StartMs != nil {
			ms := *seg.StartMs + int64(frame.Duration*1000)
			seg.EndMs = &ms
		}
		a.emit(Event{Kind: EventTranscript, Segment: seg})

	case "UtteranceEnd":
		a.emit(Event{Kind: EventUtteranceEnd})

	case "Metadata":
		a.emit(Event{Kind: EventMetadata})

	case "Error":
		a.emit(Event{Kind: EventError, Err: errkind.New(errkind.Transport, frame.Message), Reason: frame.Message})

	default:
		// Unknown frame kinds are ignored rather than treated as errors,
		// so provider additions don't break the adapter.
	}
}

func (a *Adapter) handleTransportError(ctx context.Context, err error) {
	a.emit(Event{Kind: EventError, Err: errkind.Wrap(errkind.Transport, err), Reason: "write_failed"})
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
