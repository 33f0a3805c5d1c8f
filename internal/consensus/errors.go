package consensus

import (
	"errors"
	"fmt"
)

// ErrorKind classifies consensus failures. None of them is fatal to the
// engine; each fails only the current round attempt.
type ErrorKind int

const (
	KindValidator ErrorKind = iota + 1
	KindTime
	KindProofVerificationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidator:
		return "validator error"
	case KindTime:
		return "time error"
	case KindProofVerificationFailed:
		return "proof verification failed"
	default:
		return "unknown error"
	}
}

// Error is a classified consensus error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("consensus: %s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("consensus: %s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("consensus: %s: %v", e.Kind, e.Err)
	default:
		return "consensus: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidator)
// works for every validator error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidator               = &Error{Kind: KindValidator}
	ErrTime                    = &Error{Kind: KindTime}
	ErrProofVerificationFailed = &Error{Kind: KindProofVerificationFailed}
)

// ErrNoConsensus reports a round that ended without a commit. It is a
// normal outcome under asynchrony or split votes, not an engine failure.
var ErrNoConsensus = errors.New("consensus: no consensus reached")

func validatorError(msg string) error {
	return &Error{Kind: KindValidator, Msg: msg}
}

func timeError(msg string) error {
	return &Error{Kind: KindTime, Msg: msg}
}

func proofError(err error) error {
	return &Error{Kind: KindProofVerificationFailed, Err: err}
}
