// Package display implements the RealtimeDisplayModel (spec §4.7): a
// three-line (recent/older/oldest) source/target synchronized view with
// interim merge-in-place, similarity-based dedup, translation-delta
// pairing, and fade/removal timing.
//
// There is no teacher equivalent (MatchaCake-LiveSub has no live
// caption UI state machine of its own), so this is built from the
// spec's invariants directly, in the idiom the teacher uses elsewhere
// for stateful, mutex-guarded models with an explicit read snapshot
// (internal/controller.Controller's OutputStates()). Leading-token
// similarity scoring uses github.com/antzucaro/matchr's JaroWinkler as
// the underlying string metric for the cases the spec's token-prefix
// rule doesn't fully pin down.
package display

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

type Role string

const (
	RoleRecent Role = "recent"
	RoleOlder  Role = "older"
	RoleOldest Role = "oldest"
	roleNone   Role = ""
)

type State string

const (
	StateActive    State = "active"
	StateFading    State = "fading"
	StateCompleted State = "completed"
	StateRemoved   State = "removed"
)

// validNext reports whether a state transition is allowed; anything
// else is an idempotent no-op (§4.7).
var validNext = map[State]map[State]bool{
	StateActive:    {StateFading: true, StateCompleted: true},
	StateFading:    {StateCompleted: true},
	StateCompleted: {StateRemoved: true},
	StateRemoved:   {},
}

// Source is the source-language half of a pair.
type Source struct {
	Text    string
	IsFinal bool
}

// Target is the target-language half of a pair.
type Target struct {
	Text       string
	IsComplete bool
	StartedAt  *time.Time
}

// Pair is a DisplayPair.
type Pair struct {
	ID        string
	SegmentID string
	Source    Source
	Target    Target
	Role      Role
	State     State
	StartedAt time.Time
	// stateAt marks the last state transition, used to time fade
	// durations independent of StartedAt.
	stateAt time.Time
	height  int
}

// Height returns the pair's synchronized row count: the max of the
// source and target rendered line counts, so a UI layer can align rows
// across both languages without re-deriving it.
func (p *Pair) Height() int {
	return p.height
}

const charsPerLine = 60

func computeHeight(texts ...string) int {
	h := 1
	for _, t := range texts {
		n := len([]rune(t))
		lines := (n + charsPerLine - 1) / charsPerLine
		if lines > h {
			h = lines
		}
	}
	return h
}

func (p *Pair) recomputeHeight() {
	p.height = computeHeight(p.Source.Text, p.Target.Text)
}

// transition applies a state change if valid, returning whether it
// took effect. Invalid transitions (including no-ops and transitions
// out of Removed) are silently ignored per §4.7.
func (p *Pair) transition(to State, now time.Time) bool {
	if !validNext[p.State][to] {
		return false
	}
	p.State = to
	p.stateAt = now
	return true
}

// mergeThreshold is the similarity floor above which an incoming
// transcript update merges into the current pair rather than starting
// a new one (§4.7).
const mergeThreshold = 0.7

// similarity scores two source-text candidates by leading-token match
// first (per the spec's tiers), falling back to JaroWinkler for
// anything the token rule can't resolve precisely.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	common := 0
	for i := 0; i < len(ta) && i < len(tb); i++ {
		if ta[i] != tb[i] {
			break
		}
		common++
	}
	switch {
	case common >= 3:
		return 0.95
	case common == 2:
		return 0.9
	case common == 1:
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if strings.HasPrefix(lb, la) || strings.HasPrefix(la, lb) {
			jw := matchr.JaroWinkler(a, b, false)
			return 0.85 + 0.1*jw
		}
		fallthrough
	default:
		jw := matchr.JaroWinkler(a, b, false)
		return jw * 0.3
	}
}

// Config tunes timing (§4.7).
type Config struct {
	TranslationHoldMs time.Duration
	MinDisplayMs      time.Duration
	FadeInMs          time.Duration
	FadeOutMs         time.Duration
}

func (c *Config) setDefaults() {
	if c.TranslationHoldMs <= 0 {
		c.TranslationHoldMs = 1500 * time.Millisecond
	}
	if c.MinDisplayMs <= 0 {
		c.MinDisplayMs = 1500 * time.Millisecond
	}
	if c.FadeInMs <= 0 {
		c.FadeInMs = 200 * time.Millisecond
	}
	if c.FadeOutMs <= 0 {
		c.FadeOutMs = 300 * time.Millisecond
	}
}

// Model is the RealtimeDisplayModel: pairs[0] is "recent", ordered
// newest-first. Pairs beyond index 2 are being retired.
type Model struct {
	cfg    Config
	nextID func() string
	now    func() time.Time

	mu    sync.Mutex
	pairs []*Pair
}

// New creates a Model. now defaults to time.Now if nil (tests may
// inject a deterministic clock).
func New(cfg Config, nextID func() string, now func() time.Time) *Model {
	cfg.setDefaults()
	if now == nil {
		now = time.Now
	}
	return &Model{cfg: cfg, nextID: nextID, now: now}
}

// OnInterimTranscript merges interim text into the current recent pair
// in place when that pair is active and not yet final; otherwise it
// starts a new provisional pair (§4.7).
func (m *Model) OnInterimTranscript(segmentID, text string) *Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pairs) > 0 && m.pairs[0].State == StateActive && !m.pairs[0].Source.IsFinal {
		p := m.pairs[0]
		p.SegmentID = segmentID
		p.Source.Text = text
		p.recomputeHeight()
		return p
	}
	return m.pushNewPairLocked(segmentID, text, false)
}

// OnFinalTranscript merges into the current recent pair if the new
// text is similar enough (≥ mergeThreshold), otherwise starts a new
// pair, demoting recent→older→oldest (§4.7).
func (m *Model) OnFinalTranscript(segmentID, text string) *Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pairs) > 0 && !m.pairs[0].Source.IsFinal {
		if similarity(m.pairs[0].Source.Text, text) >= mergeThreshold {
			p := m.pairs[0]
			p.SegmentID = segmentID
			p.Source.Text = text
			p.Source.IsFinal = true
			p.recomputeHeight()
			return p
		}
	}
	return m.pushNewPairLocked(segmentID, text, true)
}

func (m *Model) pushNewPairLocked(segmentID, text string, isFinal bool) *Pair {
	now := m.now()
	p := &Pair{
		ID:        m.nextID(),
		SegmentID: segmentID,
		Source:    Source{Text: text, IsFinal: isFinal},
		State:     StateActive,
		StartedAt: now,
		stateAt:   now,
	}
	p.recomputeHeight()
	m.pairs = append([]*Pair{p}, m.pairs...)
	m.reassignRolesLocked()
	return p
}

func (m *Model) reassignRolesLocked() {
	for i, p := range m.pairs {
		switch i {
		case 0:
			p.Role = RoleRecent
		case 1:
			p.Role = RoleOlder
		case 2:
			p.Role = RoleOldest
		default:
			p.Role = roleNone
		}
	}
}

// ApplyTranslationDelta routes a streaming translation delta to a
// pair per the pairing rule in §4.7: prefer an exact segment_id match,
// then the oldest live pair with a final source and empty target, then
// the pair whose target is most similar to the delta, then the most
// recently started translated pair.
func (m *Model) ApplyTranslationDelta(segmentID, delta string) *Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pickTargetPairLocked(segmentID, delta)
	if p == nil {
		return nil
	}
	if p.Target.StartedAt == nil {
		now := m.now()
		p.Target.StartedAt = &now
	}
	p.Target.Text += delta
	p.recomputeHeight()
	return p
}

func (m *Model) pickTargetPairLocked(segmentID, delta string) *Pair {
	for _, p := range m.pairs {
		if p.State == StateRemoved {
			continue
		}
		if p.SegmentID == segmentID {
			return p
		}
	}

	for i := len(m.pairs) - 1; i >= 0; i-- {
		p := m.pairs[i]
		if p.State == StateRemoved {
			continue
		}
		if p.Source.IsFinal && p.Target.Text == "" {
			return p
		}
	}

	var best *Pair
	bestScore := -1.0
	for _, p := range m.pairs {
		if p.State == StateRemoved || p.Target.Text == "" {
			continue
		}
		s := similarity(p.Target.Text, delta)
		if s > bestScore {
			bestScore = s
			best = p
		}
	}
	if best != nil {
		return best
	}

	var mostRecent *Pair
	for _, p := range m.pairs {
		if p.State == StateRemoved || p.Target.StartedAt == nil {
			continue
		}
		if mostRecent == nil || p.Target.StartedAt.After(*mostRecent.Target.StartedAt) {
			mostRecent = p
		}
	}
	if mostRecent != nil {
		return mostRecent
	}
	if len(m.pairs) > 0 {
		return m.pairs[0]
	}
	return nil
}

// SetTranslationComplete marks the target for segmentID as complete.
func (m *Model) SetTranslationComplete(segmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pairs {
		if p.SegmentID == segmentID && p.State != StateRemoved {
			p.Target.IsComplete = true
			return
		}
	}
}

// Sweep advances the pair state machine: demoted pairs (beyond
// "oldest") and pairs whose source+target are both final/complete
// start fading; fading pairs complete after FadeOutMs; completed pairs
// become eligible for removal once both MinDisplayMs (since StartedAt)
// and, if a translation ever started, TranslationHoldMs (since
// Target.StartedAt) have elapsed (§4.7). Removed pairs are dropped.
func (m *Model) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pairs {
		if p.State == StateActive {
			if p.Role == roleNone || (p.Source.IsFinal && p.Target.IsComplete) {
				p.transition(StateFading, now)
			}
		}
		if p.State == StateFading && now.Sub(p.stateAt) >= m.cfg.FadeOutMs {
			p.transition(StateCompleted, now)
		}
		if p.State == StateCompleted {
			minOk := now.Sub(p.StartedAt) >= m.cfg.MinDisplayMs
			holdOk := true
			if p.Target.StartedAt != nil {
				holdOk = now.Sub(*p.Target.StartedAt) >= m.cfg.TranslationHoldMs
			}
			if minOk && holdOk {
				p.transition(StateRemoved, now)
			}
		}
	}

	kept := m.pairs[:0]
	for _, p := range m.pairs {
		if p.State != StateRemoved {
			kept = append(kept, p)
		}
	}
	m.pairs = kept
	m.reassignRolesLocked()
}

// Opacity computes the display opacity for a pair at time now: ramping
// in over FadeInMs on creation, a flat per-role tier while active
// (recent=1.0, older=0.6, oldest≈0.35), ramping out over FadeOutMs
// while fading, and 0 once completed/removed (§4.7).
func (m *Model) Opacity(p *Pair, now time.Time) float64 {
	if p.State == StateCompleted || p.State == StateRemoved {
		return 0
	}

	base := roleOpacity(p.Role)

	if p.State == StateFading {
		elapsed := now.Sub(p.stateAt)
		frac := 1 - float64(elapsed)/float64(m.cfg.FadeOutMs)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		return base * frac
	}

	sinceStart := now.Sub(p.StartedAt)
	if sinceStart < m.cfg.FadeInMs {
		frac := float64(sinceStart) / float64(m.cfg.FadeInMs)
		if frac < 0 {
			frac = 0
		}
		return base * frac
	}
	return base
}

func roleOpacity(r Role) float64 {
	switch r {
	case RoleRecent:
		return 1.0
	case RoleOlder:
		return 0.6
	case RoleOldest:
		return 0.35
	default:
		return 0
	}
}

// Pairs returns the currently live pairs, newest first.
func (m *Model) Pairs() []*Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Reset drops every live pair (clear-history, §6).
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = nil
}
