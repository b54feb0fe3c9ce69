//go:build !portaudio
// +build !portaudio

package mic

import (
	"context"
	"fmt"
	"log/slog"

	"agora/internal/capture"
	"agora/internal/domain"
)

// Device stub when portaudio is not available.
type Device struct {
	logger *slog.Logger
}

func NewDevice(sampleRate int, logger *slog.Logger) *Device {
	return &Device{logger: logger}
}

func (d *Device) Name() string { return "portaudio" }

func (d *Device) Supports(mimeType string) bool {
	return mimeType == domain.MIMEWav
}

func (d *Device) Open(_ context.Context, _ string, _ capture.Constraints) (capture.Stream, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", capture.ErrDeviceNotFound)
}
