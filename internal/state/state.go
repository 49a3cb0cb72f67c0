// Package state implements the PipelineStateMachine (spec §4.10): the
// authoritative session state and correlation-id holder. Every
// transition carries an optional reason and is appended to a bounded
// in-memory history.
//
// Grounded on the teacher's internal/controller.Controller for the
// mutex-guarded struct + read-snapshot method shape
// (OutputStates() -> Snapshot here); the transition table itself has
// no teacher equivalent (the teacher has no session state machine), so
// it is built directly from the design notes' transition graph.
package state

import (
	"sync"
	"time"
)

// State is one of the pipeline's lifecycle states.
type State string

const (
	Idle       State = "idle"
	Starting   State = "starting"
	Listening  State = "listening"
	Processing State = "processing"
	Stopping   State = "stopping"
	Error      State = "error"
	Paused     State = "paused"
)

// validNext enumerates every allowed transition (§4.10).
var validNext = map[State]map[State]bool{
	Idle:       {Starting: true},
	Starting:   {Listening: true, Error: true, Idle: true},
	Listening:  {Processing: true, Stopping: true, Error: true, Paused: true},
	Processing: {Listening: true, Stopping: true, Error: true},
	Stopping:   {Idle: true, Error: true},
	Error:      {Idle: true},
	Paused:     {Listening: true, Stopping: true, Idle: true},
}

// Transition is one recorded state change.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

const maxHistory = 100

// Machine is the PipelineStateMachine.
type Machine struct {
	mu            sync.Mutex
	current       State
	prePause      State
	correlationID string
	startedAt     time.Time
	history       []Transition
	onTransition  func(from, to State, reason string)
}

// New creates a Machine in Idle.
func New(onTransition func(from, to State, reason string)) *Machine {
	return &Machine{current: Idle, prePause: Listening, onTransition: onTransition}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CorrelationID returns the active correlation id, empty when idle.
func (m *Machine) CorrelationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.correlationID
}

// UptimeMs returns milliseconds since the session left idle, 0 if idle.
func (m *Machine) UptimeMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt).Milliseconds()
}

// Transition attempts to move to `to`, carrying an optional reason.
// Invalid transitions are rejected (false) and leave state unchanged.
func (m *Machine) Transition(to State, reason string) bool {
	m.mu.Lock()
	from := m.current
	if !validNext[from][to] {
		m.mu.Unlock()
		return false
	}
	m.current = to
	m.appendHistoryLocked(from, to, reason)

	if from == Idle && to == Starting {
		m.startedAt = time.Now()
	}
	if to == Idle {
		m.correlationID = ""
		m.startedAt = time.Time{}
	}
	cb := m.onTransition
	m.mu.Unlock()

	if cb != nil {
		cb(from, to, reason)
	}
	return true
}

func (m *Machine) appendHistoryLocked(from, to State, reason string) {
	m.history = append(m.history, Transition{From: from, To: to, Reason: reason, Timestamp: time.Now()})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// StartListening sets the correlation id and begins the starting
// transition (idle -> starting is the only caller-visible entry point;
// the orchestrator later calls Transition(Listening, ...) once ASR
// connects).
func (m *Machine) StartListening(correlationID string) bool {
	m.mu.Lock()
	if !validNext[m.current][Starting] {
		m.mu.Unlock()
		return false
	}
	m.correlationID = correlationID
	m.mu.Unlock()
	return m.Transition(Starting, "start-listening")
}

// Pause is only valid from Listening; it remembers the state to
// restore on Resume.
func (m *Machine) Pause(reason string) bool {
	m.mu.Lock()
	if m.current != Listening {
		m.mu.Unlock()
		return false
	}
	m.prePause = m.current
	m.mu.Unlock()
	return m.Transition(Paused, reason)
}

// Resume restores the pre-pause state, defaulting to Listening.
func (m *Machine) Resume(reason string) bool {
	m.mu.Lock()
	if m.current != Paused {
		m.mu.Unlock()
		return false
	}
	target := m.prePause
	if target == "" {
		target = Listening
	}
	m.mu.Unlock()
	return m.Transition(target, reason)
}

// History returns a copy of the bounded transition history.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Snapshot is a point-in-time read of machine state, for get-state and
// status events.
type Snapshot struct {
	State         State
	CorrelationID string
	UptimeMs      int64
}

// Snap returns a Snapshot.
func (m *Machine) Snap() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	uptime := int64(0)
	if !m.startedAt.IsZero() {
		uptime = time.Since(m.startedAt).Milliseconds()
	}
	return Snapshot{State: m.current, CorrelationID: m.correlationID, UptimeMs: uptime}
}
