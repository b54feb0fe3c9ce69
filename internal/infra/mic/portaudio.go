//go:build portaudio
// +build portaudio

package mic

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"agora/internal/capture"
	"agora/internal/domain"
)

// Device captures PCM from the default input via portaudio. It only produces
// WAV; the session's preference list falls through to it when nothing else
// is supported.
type Device struct {
	sampleRate int
	logger     *slog.Logger
}

func NewDevice(sampleRate int, logger *slog.Logger) *Device {
	return &Device{sampleRate: sampleRate, logger: logger}
}

func (d *Device) Name() string { return "portaudio" }

func (d *Device) Supports(mimeType string) bool {
	return mimeType == domain.MIMEWav
}

func (d *Device) Open(_ context.Context, mimeType string, c capture.Constraints) (capture.Stream, error) {
	if mimeType != domain.MIMEWav {
		return nil, fmt.Errorf("unsupported container %q", mimeType)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	sampleRate := d.sampleRate
	if c.SampleRate > 0 {
		sampleRate = c.SampleRate
	}

	framesPerBuffer := 1024
	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	d.logger.Info("microphone opened", "sampleRate", sampleRate,
		"echoCancellation", c.EchoCancellation,
		"noiseSuppression", c.NoiseSuppression,
		"autoGain", c.AutoGainControl)

	return &pcmStream{
		stream:     stream,
		buffer:     buffer,
		sampleRate: sampleRate,
		timeslice:  c.Timeslice,
	}, nil
}

type pcmStream struct {
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate int
	timeslice  time.Duration
}

// Read collects one timeslice worth of samples as little-endian PCM bytes.
func (p *pcmStream) Read(ctx context.Context) ([]byte, error) {
	want := int(float64(p.sampleRate) * p.timeslice.Seconds())
	samples := make([]int16, 0, want)

	for len(samples) < want {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := p.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		samples = append(samples, p.buffer...)
	}

	out := &bytes.Buffer{}
	for _, sample := range samples {
		binary.Write(out, binary.LittleEndian, sample)
	}
	return out.Bytes(), nil
}

func (p *pcmStream) Close() error {
	p.stream.Stop()
	p.stream.Close()
	portaudio.Terminate()
	return nil
}

// Containerize wraps the raw PCM chunks in a WAV header so the finalized
// blob matches the negotiated audio/wav container.
func (p *pcmStream) Containerize(chunks [][]byte) ([]byte, error) {
	pcm := bytes.Join(chunks, nil)

	var buf bytes.Buffer
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(p.sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(p.sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
