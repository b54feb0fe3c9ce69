package pipeline

import (
	"context"

	"agora/internal/domain"
)

// Capture is the microphone capability: one recording at a time, finished
// either by an explicit Stop or the session's own safety timer.
type Capture interface {
	Start(ctx context.Context) error
	Stop() (*domain.Recording, error)
	// Done is closed when the current recording reaches a terminal state.
	Done() <-chan struct{}
	Result() (*domain.Recording, error)
}

// Transcriber turns a finished recording into proposal text.
type Transcriber interface {
	Transcribe(ctx context.Context, rec domain.Recording) (string, error)
}

// Scorer maps proposal text to an Evaluation. Text is validated non-empty
// before it reaches the scorer.
type Scorer interface {
	Evaluate(text string) domain.Evaluation
}

// Synthesizer renders response text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, req domain.SynthesisRequest) (domain.SynthesizedAudio, error)
}

// AudioPublisher makes synthesized audio reachable by URL so the playback
// strategies can fetch it. Implementations: minio object store, the local
// HTTP cache, or a noop that forces degraded (textual) delivery.
type AudioPublisher interface {
	Publish(ctx context.Context, runID string, audio domain.SynthesizedAudio) (string, error)
}

// NoopPublisher never yields a URL; spoken delivery is skipped.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, domain.SynthesizedAudio) (string, error) {
	return "", nil
}

// Player plays a synthesized-audio URL through the fallback chain.
type Player interface {
	Play(ctx context.Context, url string) error
	Stop()
	// Gesture releases a playback attempt parked on an autoplay block.
	Gesture()
}

// Notifier delivers a human-readable status line for a finished run.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string) error { return nil }
