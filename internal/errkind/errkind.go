// Package errkind defines the error taxonomy from the pipeline's error
// handling design: components never throw across a boundary, they wrap
// one of these sentinel kinds so the orchestrator can decide escalation
// with errors.Is instead of string matching.
package errkind

import "errors"

var (
	// Transport covers ASR or model-call transport failures. Recoverable:
	// triggers reconnect (ASR) or queue re-enqueue (translation), at the
	// orchestrator's discretion.
	Transport = errors.New("transport error")

	// Auth is non-recoverable at session scope: credentials were
	// rejected. Surfaces as status=error and stops the session.
	Auth = errors.New("auth error")

	// Timeout is recoverable at job scope: the job is counted and
	// dropped, never retried automatically.
	Timeout = errors.New("timeout")

	// QueueFull is non-fatal; the caller is informed synchronously.
	QueueFull = errors.New("queue full")

	// Duplicate is non-fatal; segment_id already active or queued.
	Duplicate = errors.New("duplicate segment")

	// InvalidState marks a programming error: an operation was invoked
	// from a state that does not permit it. Logged, never crashes the
	// pipeline.
	InvalidState = errors.New("invalid state")

	// Parse covers malformed provider frames or model JSON output.
	// Recoverable locally; callers fall back to heuristics.
	Parse = errors.New("parse error")

	// Exhausted marks a retry budget run out (e.g. ASR reconnects).
	// Non-recoverable: the session cannot continue and must escalate to
	// state.Error, distinct from a single Transport failure the caller
	// may still retry.
	Exhausted = errors.New("retries exhausted")
)

// Wrapped pairs a sentinel kind with session-specific detail while
// remaining errors.Is-compatible with the sentinel.
type Wrapped struct {
	Kind    error
	Detail  string
	Wrapped error
}

func (w *Wrapped) Error() string {
	if w.Detail == "" {
		return w.Kind.Error()
	}
	return w.Kind.Error() + ": " + w.Detail
}

// Unwrap exposes both the sentinel kind and the underlying cause (when
// present) so errors.Is(err, SomeKind) and errors.Is(err, cause) both
// work against a Wrapped value.
func (w *Wrapped) Unwrap() []error {
	if w.Wrapped != nil {
		return []error{w.Kind, w.Wrapped}
	}
	return []error{w.Kind}
}

// New builds a Wrapped error of the given kind with a detail message.
func New(kind error, detail string) error {
	return &Wrapped{Kind: kind, Detail: detail}
}

// Wrap builds a Wrapped error of the given kind, preserving cause for
// errors.Is/errors.As against both kind and cause.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return &Wrapped{Kind: kind, Detail: cause.Error(), Wrapped: cause}
}

// Recoverable reports whether an error kind is recoverable per §7.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, Auth), errors.Is(err, Exhausted):
		return false
	case errors.Is(err, Transport), errors.Is(err, Timeout),
		errors.Is(err, QueueFull), errors.Is(err, Duplicate),
		errors.Is(err, InvalidState), errors.Is(err, Parse):
		return true
	default:
		return true
	}
}
