package pipeline

import (
	"context"
	"errors"
	"fmt"

	"videodubber/internal/timeline"
	"videodubber/internal/transcriber"
	"videodubber/internal/tts"
)

// Kind classifies why a run failed
type Kind int

const (
	KindCollaboratorFailure Kind = iota
	KindDurationExceeded
	KindSameLanguage
	KindOverlap
	KindEngineUnavailable
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindDurationExceeded:
		return "duration_exceeded"
	case KindSameLanguage:
		return "same_language"
	case KindOverlap:
		return "overlap"
	case KindEngineUnavailable:
		return "engine_unavailable"
	case KindCanceled:
		return "canceled"
	default:
		return "collaborator_failure"
	}
}

// ErrSameLanguage is the cause of every KindSameLanguage failure
var ErrSameLanguage = errors.New("Same language")

// Error is the single failure a run reports. Stage names the progress stage
// that was running when it failed.
type Error struct {
	Kind  Kind
	Stage string
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDurationExceeded, KindSameLanguage:
		return e.Cause.Error()
	case KindCanceled:
		return fmt.Sprintf("run canceled during %s", e.Stage)
	default:
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Cause)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is a pipeline Error of the given kind
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// classify wraps a stage error with its kind. A caller-ended context wins over
// whatever error the collaborator produced while being torn down.
func classify(ctx context.Context, stage string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	kind := KindCollaboratorFailure
	var overlap *timeline.OverlapError
	var malformed *timeline.MalformedSegmentError

	switch {
	case ctx.Err() != nil:
		kind = KindCanceled
	case errors.As(err, &overlap), errors.As(err, &malformed):
		kind = KindOverlap
	case errors.Is(err, tts.ErrEngineUnavailable), errors.Is(err, transcriber.ErrEngineUnavailable):
		kind = KindEngineUnavailable
	}
	return &Error{Kind: kind, Stage: stage, Cause: err}
}
