//go:build portaudio
// +build portaudio

package speaker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"agora/internal/domain"
	"agora/internal/playback"
)

// Output renders PCM through the default portaudio output device. Container
// playback is limited to WAV; other containers fail the strategy so the
// controller can fall through.
type Output struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopped chan struct{}
}

func NewOutput(logger *slog.Logger) *Output {
	return &Output{logger: logger}
}

func (o *Output) Stream(ctx context.Context, r io.Reader, mimeType string) error {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	if base != domain.MIMEWav && base != "audio/x-wav" && base != "" {
		return fmt.Errorf("speaker cannot decode %q", mimeType)
	}

	samples, sampleRate, err := playback.DecodeWAV(r)
	if err != nil {
		return fmt.Errorf("decoding stream: %w", err)
	}
	return o.RenderPCM(ctx, samples, sampleRate)
}

func (o *Output) RenderPCM(ctx context.Context, samples []int16, sampleRate int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	framesPerBuffer := 1024
	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	defer stream.Stop()

	stopped := make(chan struct{})
	o.mu.Lock()
	o.stopped = stopped
	o.mu.Unlock()

	o.logger.Info("rendering audio", "samples", len(samples), "sampleRate", sampleRate)

	for offset := 0; offset < len(samples); offset += framesPerBuffer {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return nil
		default:
		}

		n := copy(buffer, samples[offset:])
		for i := n; i < framesPerBuffer; i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to output stream: %w", err)
		}
	}

	return nil
}

func (o *Output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped != nil {
		select {
		case <-o.stopped:
		default:
			close(o.stopped)
		}
		o.stopped = nil
	}
}
