package portal

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure by how far it propagates.
type Kind int

const (
	// KindTransient covers waits that exceeded their bound. Retried.
	KindTransient Kind = iota
	// KindField is a single extraction chain that produced nothing.
	KindField
	// KindSubmit means the query could not be entered or submitted.
	KindSubmit
	// KindAmbiguous means the result page matched no known layout.
	KindAmbiguous
	// KindDisambiguation means no candidate of a multiple listing could be chosen.
	KindDisambiguation
	// KindPersist means the record store rejected the update.
	KindPersist
	// KindSessionFatal aborts the run before or between cases.
	KindSessionFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindField:
		return "field"
	case KindSubmit:
		return "submit"
	case KindAmbiguous:
		return "ambiguous"
	case KindDisambiguation:
		return "disambiguation"
	case KindPersist:
		return "persist"
	case KindSessionFatal:
		return "session"
	}
	return "unknown"
}

var (
	// ErrTimeout is returned by drivers when a bounded wait expires.
	ErrTimeout = errors.New("timed out")
	// ErrStopped is returned by Orchestrator.Run after Stop was requested.
	ErrStopped = errors.New("run stopped")
	// ErrRecordNotFound is returned by stores when an update targets no record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNoCandidates means a multiple listing had no usable entry.
	ErrNoCandidates = errors.New("no candidate with a parsable filing date")
)

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Op   string
	Case string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Case != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Case)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error wrapping err.
func Errorf(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err. Timeouts and deadline errors that were never
// classified count as transient; anything else unclassified is a submit failure.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindSubmit
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransient
}

// IsSessionFatal reports whether err must abort the run.
func IsSessionFatal(err error) bool {
	return err != nil && KindOf(err) == KindSessionFatal
}
