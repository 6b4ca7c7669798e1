package httpclient

import "fmt"

// Kind enumerates the error taxonomy from the error-handling design: every
// failure surfaced by the client is one of these, never a bare error value.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindTransientTransport Kind = "transient_transport"
	KindParseFailure       Kind = "parse_failure"
	KindAuthFailure        Kind = "auth_failure"
	KindInvariantViolation Kind = "invariant_violation"
	KindCancelled          Kind = "cancelled"
)

// Error wraps a Kind with context so callers can both pattern-match on the
// kind (via Is) and print a useful message, following the %w-wrapping
// convention used throughout the teacher codebase (forge/gitea.go,
// registry/client.go).
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Status  int
	Err     error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s (%s)", e.Op, e.Path, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s (%s)", e.Op, e.Path, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &Error{Kind: KindNotFound}) style matching on kind
// alone, ignoring the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool { return kindIs(err, KindNotFound) }

// IsRateLimited reports whether err is (or wraps) a rate-limited error.
func IsRateLimited(err error) bool { return kindIs(err, KindRateLimited) }

func kindIs(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
