// Package sentence implements the SentenceCombiner (spec §4.4): it
// accumulates final transcript segments and emits a CombinedSentence
// once enough segments have landed, a sentence terminator appears, or
// the accumulator has sat idle past its inactivity timeout.
//
// Grounded on the teacher's internal/controller.go accumulation loop
// (buffer transcript text, flush on a trigger, reset on emit), which
// buffers whole utterances rather than combining segments into
// sentences; the buffering/timer/flush shape is kept, the trigger
// conditions are rebuilt to match §4.4.
package sentence

import (
	"strings"
	"sync"
	"time"
)

// CombinedSentence is the output of the combiner.
type CombinedSentence struct {
	ID            string
	Text          string
	SegmentIDs    []string
	CorrelationID string
	EmittedAt     time.Time
}

var terminators = []string{".", "!", "?", "。", "！", "？", "…"}

func endsWithTerminator(s string) bool {
	s = strings.TrimSpace(s)
	for _, t := range terminators {
		if strings.HasSuffix(s, t) {
			return true
		}
	}
	return false
}

// Config tunes the combiner (§4.4).
type Config struct {
	MaxSegments        int
	MinSegments         int
	InactivityTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxSegments <= 0 {
		c.MaxSegments = 10
	}
	if c.MinSegments <= 0 {
		c.MinSegments = 1
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 2000 * time.Millisecond
	}
}

// Combiner accumulates final segments and emits CombinedSentences via
// the callback passed to New.
type Combiner struct {
	cfg     Config
	emit    func(CombinedSentence)
	nextID  func() string

	mu         sync.Mutex
	texts      []string
	segmentIDs []string
	corrID     string
	timer      *time.Timer
}

// New creates a Combiner. emit is called synchronously whenever a
// sentence is produced; nextID generates CombinedSentence IDs (e.g.
// "cs_<monotonic>" via a shared counter).
func New(cfg Config, emit func(CombinedSentence), nextID func() string) *Combiner {
	cfg.setDefaults()
	return &Combiner{cfg: cfg, emit: emit, nextID: nextID}
}

// AddFinal appends a final transcript segment to the buffer. Triggers
// an emission when the buffer reaches MaxSegments, or when the segment
// ends in a sentence terminator and the buffer already holds at least
// MinSegments.
func (c *Combiner) AddFinal(segmentID, text, correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.texts) == 0 {
		c.corrID = correlationID
	}
	c.texts = append(c.texts, text)
	c.segmentIDs = append(c.segmentIDs, segmentID)
	c.resetTimerLocked()

	if len(c.texts) >= c.cfg.MaxSegments {
		c.flushLocked()
		return
	}
	if len(c.texts) >= c.cfg.MinSegments && endsWithTerminator(text) {
		c.flushLocked()
		return
	}
}

// ForceEmit flushes any buffered segments regardless of trigger state
// (e.g. on stop-listening), emitting nothing if the buffer is empty.
func (c *Combiner) ForceEmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Combiner) resetTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.InactivityTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.flushLocked()
	})
}

func (c *Combiner) flushLocked() {
	if len(c.texts) == 0 {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cs := CombinedSentence{
		ID:            c.nextID(),
		Text:          strings.Join(c.texts, " "),
		SegmentIDs:    append([]string(nil), c.segmentIDs...),
		CorrelationID: c.corrID,
		EmittedAt:     time.Now(),
	}
	c.texts = nil
	c.segmentIDs = nil
	c.emit(cs)
}
