// Package paragraph implements the ParagraphBuilder (spec §4.5): it
// groups final transcript segments into paragraphs, flushing on a
// silence gap, a discourse cue or a sentence terminator once min_chunks
// segments have accumulated, or on the max-duration ceiling, and
// cleans the resulting text for display.
//
// Grounded on the same accumulate/flush idiom as internal/sentence,
// carried one level up; the text-cleaning pass is new (the teacher has
// no equivalent), built with plain strings/regexp per the teacher's
// general preference for stdlib text handling over a scrubbing library
// (no pack example pulls one in for this).
package paragraph

import (
	"regexp"
	"strings"
	"time"
)

// collapseStutter removes immediately repeated runs of 1-3 words
// (case-insensitive), e.g. "the the meeting" -> "the meeting" and
// "about to about to start" -> "about to start". Go's regexp package
// is RE2 and has no backreference support, so this is done by hand
// rather than with a `(\w+)\s+\1` pattern.
func collapseStutter(s string) string {
	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		matched := false
		for l := 3; l >= 1; l-- {
			if i+2*l > len(words) {
				continue
			}
			same := true
			for k := 0; k < l; k++ {
				if !strings.EqualFold(words[i+k], words[i+l+k]) {
					same = false
					break
				}
			}
			if same {
				out = append(out, words[i:i+l]...)
				i += 2 * l
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

// Paragraph is the ParagraphBuilder's output.
type Paragraph struct {
	ID            string
	RawText       string
	CleanedText   string
	SentenceIDs   []string
	CorrelationID string
	StartTime     time.Time
	EndTime       time.Time
	EmittedAt     time.Time
}

var discourseCues = []string{
	"so,", "so ", "now,", "now ", "next,", "next ", "anyway,", "anyway ",
	"okay,", "okay ", "ok,", "ok ", "alright,", "alright ", "moving on",
	"right,", "right ", "let's", "let us",
}

func startsWithDiscourseCue(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, cue := range discourseCues {
		if strings.HasPrefix(lower, cue) {
			return true
		}
	}
	return false
}

var terminators = []string{".", "!", "?", "。", "！", "？"}

func endsWithTerminator(s string) bool {
	s = strings.TrimSpace(s)
	for _, t := range terminators {
		if strings.HasSuffix(s, t) {
			return true
		}
	}
	return false
}

// Config tunes the builder (§4.5).
type Config struct {
	MinChunks       int
	MaxDuration     time.Duration
	SilenceThreshold time.Duration
}

func (c *Config) setDefaults() {
	if c.MinChunks <= 0 {
		c.MinChunks = 15
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 60 * time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 3 * time.Second
	}
}

// Builder accumulates final transcript segment text into paragraphs.
type Builder struct {
	cfg    Config
	emit   func(Paragraph)
	nextID func() string

	sentences []string
	ids       []string
	corrID    string
	startedAt time.Time
	lastAddAt time.Time
}

// New creates a Builder. emit is called synchronously on each paragraph.
func New(cfg Config, emit func(Paragraph), nextID func() string) *Builder {
	cfg.setDefaults()
	return &Builder{cfg: cfg, emit: emit, nextID: nextID}
}

// AddSentence appends one final transcript segment. A flush may fire before
// appending (silence gap, discourse cue) or after (max duration,
// sentence terminator); the silence-gap, discourse-cue, and terminator
// triggers are gated on min_chunks already being reached, so no
// mid-session flush (other than the max-duration ceiling) produces a
// paragraph short of min_chunks (§3 Paragraph invariant, §4.6).
func (b *Builder) AddSentence(sentenceID, text, correlationID string) {
	now := time.Now()

	if len(b.sentences) >= b.cfg.MinChunks {
		gap := now.Sub(b.lastAddAt)
		if gap >= b.cfg.SilenceThreshold || startsWithDiscourseCue(text) {
			b.Flush()
		}
	}

	if len(b.sentences) == 0 {
		b.corrID = correlationID
		b.startedAt = now
	}
	b.sentences = append(b.sentences, text)
	b.ids = append(b.ids, sentenceID)
	b.lastAddAt = now

	if now.Sub(b.startedAt) >= b.cfg.MaxDuration {
		b.Flush()
		return
	}
	if len(b.sentences) >= b.cfg.MinChunks && endsWithTerminator(text) {
		b.Flush()
	}
}

// Flush forces emission of any buffered sentences, regardless of
// min_chunks — the caller is responsible for only invoking it mid-
// session once the gate in AddSentence has been checked, or
// unconditionally at session stop (§3: "unless flushed at stop").
func (b *Builder) Flush() {
	if len(b.sentences) == 0 {
		return
	}
	raw := strings.Join(b.sentences, " ")
	p := Paragraph{
		ID:            b.nextID(),
		RawText:       raw,
		CleanedText:   Clean(raw),
		SentenceIDs:   append([]string(nil), b.ids...),
		CorrelationID: b.corrID,
		StartTime:     b.startedAt,
		EndTime:       b.lastAddAt,
		EmittedAt:     time.Now(),
	}
	b.sentences = nil
	b.ids = nil
	b.emit(p)
}

var (
	fillerWordsRE = regexp.MustCompile(`(?i)\b(um+|uh+|erm+|you know|i mean|like)\b[,.]?\s*`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
)

// Clean produces display-ready text from raw combined-sentence text:
// filler words stripped, stuttered duplicate words collapsed,
// whitespace normalized, and the first letter capitalized (§4.5).
func Clean(raw string) string {
	s := fillerWordsRE.ReplaceAllString(raw, "")
	s = collapseStutter(s)
	s = whitespaceRE.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
