package state

import "testing"

func TestValidTransitionSequence(t *testing.T) {
	m := New(nil)
	if !m.StartListening("corr-1") {
		t.Fatal("expected idle -> starting to succeed")
	}
	if m.Current() != Starting {
		t.Fatalf("current = %v, want Starting", m.Current())
	}
	if !m.Transition(Listening, "asr connected") {
		t.Fatal("expected starting -> listening to succeed")
	}
	if !m.Transition(Processing, "job dispatched") {
		t.Fatal("expected listening -> processing to succeed")
	}
	if !m.Transition(Listening, "job complete") {
		t.Fatal("expected processing -> listening to succeed")
	}
	if !m.Transition(Stopping, "stop-listening") {
		t.Fatal("expected listening -> stopping to succeed")
	}
	if !m.Transition(Idle, "drained") {
		t.Fatal("expected stopping -> idle to succeed")
	}
	if m.CorrelationID() != "" {
		t.Fatalf("expected correlation id cleared on idle, got %q", m.CorrelationID())
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := New(nil)
	if m.Transition(Processing, "") {
		t.Fatal("expected idle -> processing to be rejected")
	}
	if m.Current() != Idle {
		t.Fatalf("current = %v, want unchanged Idle", m.Current())
	}
}

func TestPauseOnlyValidFromListening(t *testing.T) {
	m := New(nil)
	if m.Pause("") {
		t.Fatal("expected pause from idle to be rejected")
	}
	m.StartListening("c1")
	m.Transition(Listening, "")
	if !m.Pause("user requested") {
		t.Fatal("expected pause from listening to succeed")
	}
	if m.Current() != Paused {
		t.Fatalf("current = %v, want Paused", m.Current())
	}
}

func TestResumeRestoresListeningByDefault(t *testing.T) {
	m := New(nil)
	m.StartListening("c1")
	m.Transition(Listening, "")
	m.Pause("")
	if !m.Resume("") {
		t.Fatal("expected resume from paused to succeed")
	}
	if m.Current() != Listening {
		t.Fatalf("current = %v, want Listening", m.Current())
	}
}

func TestResumeInvalidWhenNotPaused(t *testing.T) {
	m := New(nil)
	if m.Resume("") {
		t.Fatal("expected resume from idle to be rejected")
	}
}

func TestHistoryBoundedToMaxEntries(t *testing.T) {
	m := New(nil)
	m.StartListening("c1")
	m.Transition(Listening, "")
	for i := 0; i < maxHistory+20; i++ {
		m.Transition(Processing, "")
		m.Transition(Listening, "")
	}
	h := m.History()
	if len(h) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(h), maxHistory)
	}
}

func TestOnTransitionCallbackFires(t *testing.T) {
	var calls int
	m := New(func(from, to State, reason string) { calls++ })
	m.StartListening("c1")
	m.Transition(Listening, "")
	if calls != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", calls)
	}
}

func TestErrorAlwaysReturnsToIdle(t *testing.T) {
	m := New(nil)
	m.StartListening("c1")
	if !m.Transition(Error, "auth rejected") {
		t.Fatal("expected starting -> error to succeed")
	}
	if !m.Transition(Idle, "reset") {
		t.Fatal("expected error -> idle to succeed")
	}
}
