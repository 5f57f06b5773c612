// Package errors classifies failures at collaborator boundaries so callers can
// decide between degrading locally and aborting a run.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the failure category carried by an *Error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTool is a data tool that failed or does not exist. Recovered inside the tool loop.
	KindTool
	// KindLLM is a provider error or a malformed completion.
	KindLLM
	// KindExtraction is a structured decision that could not be parsed.
	KindExtraction
	// KindRoundLimit marks the normal end of a debate.
	KindRoundLimit
	// KindIterationCap marks a stage stopped by the tool-call iteration cap.
	KindIterationCap
	KindConfig
	KindCanceled
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindTool:
		return "tool_failure"
	case KindLLM:
		return "llm_failure"
	case KindExtraction:
		return "extraction_failure"
	case KindRoundLimit:
		return "round_limit"
	case KindIterationCap:
		return "iteration_cap"
	case KindConfig:
		return "config"
	case KindCanceled:
		return "canceled"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrNoAnalysts    = errors.New("at least one analyst must be selected")
	ErrInvalidDepth  = errors.New("research depth must be between 1 and 5")
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoJSON        = errors.New("no json object found")
	ErrOutOfTurn     = errors.New("speaker out of turn")
	ErrNotConfigured = errors.New("not configured")
)

// Error wraps an underlying error with its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf builds a classified error from a format string.
func Wrapf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost *Error in err's chain. Context
// cancellation is reported as KindCanceled even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if IsCanceled(err) {
		return KindCanceled
	}
	return KindUnknown
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return kind == KindCanceled && IsCanceled(err)
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Re-exported so callers only need one errors import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
