package capture

import (
	"context"
	"errors"
	"time"
)

// Errors a Device may return from Open. The session maps them onto the
// tagged capture-error taxonomy.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrDeviceNotFound   = errors.New("no audio input device found")
)

// Constraints are the capture settings requested from the device.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	// Timeslice is how much audio each Stream.Read call yields.
	Timeslice time.Duration
}

// Stream delivers encoded audio from an open device, one timeslice per Read.
type Stream interface {
	// Read blocks until the next slice of audio is available or ctx is done.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Containerizer is an optional Stream capability. Devices that produce raw
// frames (e.g. PCM from a sound card) implement it so the session can wrap
// the collected chunks in the negotiated container at finalize time. Streams
// whose chunks are already containerized omit it; their chunks concatenate.
type Containerizer interface {
	Containerize(chunks [][]byte) ([]byte, error)
}

// Device abstracts an audio input. Implementations: portaudio microphone
// (build tag), a stub for builds without portaudio, fakes in tests.
type Device interface {
	Name() string
	// Supports reports whether the device can produce the given container.
	Supports(mimeType string) bool
	Open(ctx context.Context, mimeType string, c Constraints) (Stream, error)
}
