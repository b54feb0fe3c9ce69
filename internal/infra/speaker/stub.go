//go:build !portaudio
// +build !portaudio

package speaker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Output stub when portaudio is not available. Every strategy fails, which
// the orchestrator treats as degraded (textual) delivery.
type Output struct {
	logger *slog.Logger
}

func NewOutput(logger *slog.Logger) *Output {
	return &Output{logger: logger}
}

func (o *Output) Stream(_ context.Context, r io.Reader, _ string) error {
	io.Copy(io.Discard, r)
	return fmt.Errorf("speaker not available: rebuild with -tags portaudio")
}

func (o *Output) RenderPCM(_ context.Context, _ []int16, _ int) error {
	return fmt.Errorf("speaker not available: rebuild with -tags portaudio")
}

func (o *Output) Stop() {}
