package domain

import (
	"errors"
	"fmt"
)

// CaptureErrorKind tags the failure mode of a capture session.
type CaptureErrorKind string

const (
	CapturePermissionDenied CaptureErrorKind = "permission_denied"
	CaptureDeviceNotFound   CaptureErrorKind = "device_not_found"
	CaptureRecorderFault    CaptureErrorKind = "recorder_fault"
	CaptureTooShort         CaptureErrorKind = "too_short"
)

// CaptureError is a tagged capture failure with the triggering cause attached.
type CaptureError struct {
	Kind  CaptureErrorKind
	Cause error
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("capture %s", e.Kind)
}

func (e *CaptureError) Unwrap() error { return e.Cause }

func NewCaptureError(kind CaptureErrorKind, cause error) *CaptureError {
	return &CaptureError{Kind: kind, Cause: cause}
}

// IsCaptureKind reports whether err is a CaptureError of the given kind.
func IsCaptureKind(err error, kind CaptureErrorKind) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Kind == kind
}

// NetworkErrorKind tags transcription/synthesis transport failures.
type NetworkErrorKind string

const (
	NetworkTimeout     NetworkErrorKind = "timeout"
	NetworkServerError NetworkErrorKind = "server_error"
)

type NetworkError struct {
	Kind  NetworkErrorKind
	Cause error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("network %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("network %s", e.Kind)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

func NewNetworkError(kind NetworkErrorKind, cause error) *NetworkError {
	return &NetworkError{Kind: kind, Cause: cause}
}

func IsNetworkKind(err error, kind NetworkErrorKind) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == kind
}

// ErrAllStrategiesExhausted is returned by playback once every strategy in the
// fallback chain has failed. Playback failures degrade a run, they never abort
// its textual outcome.
var ErrAllStrategiesExhausted = errors.New("playback: all strategies exhausted")

// ErrNotAllowed is the autoplay-block class of playback error: the output
// policy refused to start unattended playback. It gates a one-shot
// user-gesture retry rather than an immediate fallthrough.
var ErrNotAllowed = errors.New("playback not allowed without user gesture")

// ErrEmptyProposal is returned when a proposal with no text reaches a
// boundary that requires one.
var ErrEmptyProposal = errors.New("empty proposal text")

// ErrRunSuperseded marks a run whose in-flight work was discarded because a
// newer run took over the pipeline.
var ErrRunSuperseded = errors.New("pipeline run superseded")
