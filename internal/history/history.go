// Package history implements the HistoryGrouper (spec §4.8): it groups
// finalized {sentence_id, original, translation?, ts} items into
// HistoryBlocks of 3-5 sentences (or a single item for a paragraph
// block), and supports exactly-once, mutate-in-place translation
// updates on sentences already emitted.
//
// Grounded on the accumulate/flush idiom shared with
// internal/sentence and internal/paragraph; update_translation's
// "emitted block is mutated in place, never cloned" rule follows the
// design notes' instruction that the HistoryGrouper's blocks are the
// single authoritative history.
package history

import (
	"strings"
	"sync"
	"time"
)

// Kind distinguishes a sentence-run block from a single-paragraph block.
type Kind string

const (
	KindSentences Kind = "sentences"
	KindParagraph Kind = "paragraph"
)

// Sentence is one item inside a HistoryBlock.
type Sentence struct {
	ID          string
	Original    string
	Translation string
	Timestamp   time.Time
}

// Block is a HistoryBlock.
type Block struct {
	ID        string
	Kind      Kind
	Sentences []*Sentence
	CreatedAt time.Time
	Height    int
}

const lineHeight = 1
const heightPadding = 1
const charsPerLine = 40

// recomputeHeight implements: Σ per-sentence max(ceil(source_len/40),
// ceil(target_len/40)) × line_height + padding (§4.8).
func (b *Block) recomputeHeight() {
	total := 0
	for _, s := range b.Sentences {
		srcLines := ceilDiv(len([]rune(s.Original)), charsPerLine)
		tgtLines := ceilDiv(len([]rune(s.Translation)), charsPerLine)
		h := srcLines
		if tgtLines > h {
			h = tgtLines
		}
		total += h * lineHeight
	}
	b.Height = total + heightPadding
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 1
	}
	return (n + d - 1) / d
}

func sentenceCount(items []*Sentence) int {
	count := 0
	for _, s := range items {
		dots := strings.Count(s.Original, ".")
		cjk := strings.Count(s.Original, "。")
		c := cjk
		if dots > c {
			c = dots
		}
		if c < 1 {
			c = 1
		}
		count += c
	}
	return count
}

var naturalBreakSuffixes = []string{".", "。", "?", "？", "!", "！"}

func endsWithNaturalBreak(s string) bool {
	s = strings.TrimSpace(s)
	for _, suf := range naturalBreakSuffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// Config tunes the grouper (§4.8).
type Config struct {
	MinSentencesPerBlock int
	MaxSentencesPerBlock int
	NaturalBreakGap      time.Duration
}

func (c *Config) setDefaults() {
	if c.MinSentencesPerBlock <= 0 {
		c.MinSentencesPerBlock = 3
	}
	if c.MaxSentencesPerBlock <= 0 {
		c.MaxSentencesPerBlock = 5
	}
	if c.NaturalBreakGap <= 0 {
		c.NaturalBreakGap = 3000 * time.Millisecond
	}
}

// Grouper is the HistoryGrouper.
type Grouper struct {
	cfg    Config
	emit   func(*Block)
	update func(*Block) // called when an already-emitted block mutates
	nextID func() string

	mu       sync.Mutex
	buffer   []*Sentence
	blocks   map[string]*Block   // all emitted blocks, by id
	bySentID map[string]*Block   // sentence id -> emitted block containing it
}

// New creates a Grouper. emit fires on every new block; update fires
// when update_translation mutates an already-emitted block.
func New(cfg Config, emit func(*Block), update func(*Block), nextID func() string) *Grouper {
	cfg.setDefaults()
	return &Grouper{
		cfg:      cfg,
		emit:     emit,
		update:   update,
		nextID:   nextID,
		blocks:   make(map[string]*Block),
		bySentID: make(map[string]*Block),
	}
}

// Add appends a finalized sentence-tier item to the buffer, emitting a
// block when the max sentence count is reached, or when the min is
// reached and a natural break is present (terminator or ≥3000ms gap).
func (g *Grouper) Add(sentenceID, original, translation string, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	gap := time.Duration(0)
	if len(g.buffer) > 0 {
		gap = ts.Sub(g.buffer[len(g.buffer)-1].Timestamp)
	}

	g.buffer = append(g.buffer, &Sentence{ID: sentenceID, Original: original, Translation: translation, Timestamp: ts})

	count := sentenceCount(g.buffer)
	if count >= g.cfg.MaxSentencesPerBlock {
		g.flushLocked(KindSentences)
		return
	}
	if count >= g.cfg.MinSentencesPerBlock {
		naturalBreak := endsWithNaturalBreak(original) || gap >= g.cfg.NaturalBreakGap
		if naturalBreak {
			g.flushLocked(KindSentences)
		}
	}
}

// AddParagraph immediately flushes any buffered sentences (as their own
// block) and emits a single-item paragraph block.
func (g *Grouper) AddParagraph(sentenceID, original, translation string, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.flushLocked(KindSentences)

	g.buffer = []*Sentence{{ID: sentenceID, Original: original, Translation: translation, Timestamp: ts}}
	g.flushLocked(KindParagraph)
}

func (g *Grouper) flushLocked(kind Kind) {
	if len(g.buffer) == 0 {
		return
	}
	b := &Block{
		ID:        g.nextID(),
		Kind:      kind,
		Sentences: g.buffer,
		CreatedAt: time.Now(),
	}
	b.recomputeHeight()
	g.buffer = nil

	g.blocks[b.ID] = b
	for _, s := range b.Sentences {
		g.bySentID[s.ID] = b
	}
	if g.emit != nil {
		g.emit(b)
	}
}

// UpdateTranslation mutates a sentence's translation exactly once
// (first update wins). If the sentence's block has already been
// emitted, the update callback fires so the orchestrator can emit a
// history-block-updated event; no block id is ever reused (§4.8).
func (g *Grouper) UpdateTranslation(sentenceID, newTranslation string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.bySentID[sentenceID]; ok {
		for _, s := range b.Sentences {
			if s.ID == sentenceID {
				if s.Translation != "" {
					return // first update already won
				}
				s.Translation = newTranslation
				b.recomputeHeight()
				if g.update != nil {
					g.update(b)
				}
				return
			}
		}
	}

	for _, s := range g.buffer {
		if s.ID == sentenceID {
			if s.Translation == "" {
				s.Translation = newTranslation
			}
			return
		}
	}
}

// Reset discards all buffered and emitted state (used by clear-history).
func (g *Grouper) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buffer = nil
	g.blocks = make(map[string]*Block)
	g.bySentID = make(map[string]*Block)
}

// Blocks returns all emitted blocks (for get-state / final report use).
func (g *Grouper) Blocks() []*Block {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Block, 0, len(g.blocks))
	for _, b := range g.blocks {
		out = append(out, b)
	}
	return out
}
