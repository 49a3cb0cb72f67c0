package errkind

import (
	"errors"
	"testing"
)

func TestWrapMatchesKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(Transport, cause)

	if !errors.Is(err, Transport) {
		t.Fatal("expected errors.Is(err, Transport) to hold")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is(err, cause) to hold")
	}
	if errors.Is(err, Auth) {
		t.Fatal("did not expect errors.Is(err, Auth) to hold")
	}
}

func TestNewMatchesKindWithNoCause(t *testing.T) {
	err := New(Exhausted, "reconnects exhausted")
	if !errors.Is(err, Exhausted) {
		t.Fatal("expected errors.Is(err, Exhausted) to hold")
	}
}

func TestWrapNilCauseReturnsKind(t *testing.T) {
	err := Wrap(Transport, nil)
	if err != Transport {
		t.Fatalf("expected Wrap with nil cause to return the kind itself, got %v", err)
	}
}

func TestRecoverableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"auth is fatal", New(Auth, "rejected"), false},
		{"exhausted is fatal", New(Exhausted, "reconnects exhausted"), false},
		{"transport is recoverable", New(Transport, "reset"), true},
		{"wrapped auth cause still fatal", Wrap(Auth, errors.New("401")), false},
	}
	for _, c := range cases {
		if got := Recoverable(c.err); got != c.want {
			t.Errorf("%s: Recoverable() = %v, want %v", c.name, got, c.want)
		}
	}
}
