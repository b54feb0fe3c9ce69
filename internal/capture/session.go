package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agora/internal/domain"
)

// State of a recording session. Transitions are forward-only:
// Idle → Requesting → Recording → Stopping → {Completed | Failed},
// and a finished session resets to Idle only through a fresh Start.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRecording
	StateStopping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Defaults for the session safety limits.
const (
	DefaultTimeslice   = time.Second
	DefaultMaxDuration = 15 * time.Second
)

// Session owns one microphone recording at a time. At most one instance
// should exist per pipeline; Start while already recording stops the live
// recording first.
type Session struct {
	device      Device
	logger      *slog.Logger
	timeslice   time.Duration
	maxDuration time.Duration
	minBytes    int

	mu         sync.Mutex
	state      State
	epoch      uint64
	mimeType   string
	chunks     [][]byte
	stream     Stream
	safety     *time.Timer
	readCancel context.CancelFunc
	readDone   chan struct{}
	done       chan struct{}
	result     *domain.Recording
	failure    error
}

func NewSession(device Device, logger *slog.Logger) *Session {
	return &Session{
		device:      device,
		logger:      logger,
		timeslice:   DefaultTimeslice,
		maxDuration: DefaultMaxDuration,
		minBytes:    domain.MinRecordingBytes,
		state:       StateIdle,
	}
}

// SetLimits overrides the timeslice and safety-stop duration. Tests shorten
// them; production keeps the defaults.
func (s *Session) SetLimits(timeslice, maxDuration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeslice = timeslice
	s.maxDuration = maxDuration
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the current recording reaches Completed or Failed.
// Valid after Start returns; the safety timer may finish the recording
// without an explicit Stop call.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Result returns the finalized recording, or the failure that ended it.
func (s *Session) Result() (*domain.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.failure
}

// Start negotiates a container, requests the microphone, and begins
// collecting timeslices. A live recording is stopped first, sequentially.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRequesting || s.state == StateRecording || s.state == StateStopping {
		s.mu.Unlock()
		s.logger.Info("capture restart requested, stopping live session")
		if _, err := s.Stop(); err != nil {
			s.logger.Warn("stopping prior recording", "error", err)
		}
		s.mu.Lock()
	}

	mime, ok := negotiate(s.device)
	if !ok {
		s.state = StateFailed
		s.failure = domain.NewCaptureError(domain.CaptureRecorderFault,
			fmt.Errorf("device %s supports none of the preferred containers", s.device.Name()))
		s.mu.Unlock()
		return s.failure
	}

	s.state = StateRequesting
	s.epoch++
	epoch := s.epoch
	s.mimeType = mime
	s.chunks = nil
	s.result = nil
	s.failure = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	constraints := Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		Timeslice:        s.timeslice,
	}

	stream, err := s.device.Open(ctx, mime, constraints)
	if err != nil {
		capErr := classifyOpenError(err)
		s.mu.Lock()
		// A Stop during Requesting already finished this attempt.
		if s.epoch == epoch && s.state == StateRequesting {
			s.state = StateFailed
			s.failure = capErr
			close(s.done)
		}
		s.mu.Unlock()
		return capErr
	}

	readCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateRequesting {
		// Stopped or restarted while Open was in flight: the attempt is
		// already finished, so release the device and report the failure.
		// On a restart s.failure belongs to the newer attempt, not ours.
		var failure error
		if s.epoch == epoch {
			failure = s.failure
		}
		s.mu.Unlock()
		cancel()
		if err := stream.Close(); err != nil {
			s.logger.Warn("releasing superseded capture device", "error", err)
		}
		if failure == nil {
			failure = domain.NewCaptureError(domain.CaptureRecorderFault,
				errors.New("capture superseded while opening the device"))
		}
		return failure
	}
	s.state = StateRecording
	s.stream = stream
	s.readCancel = cancel
	s.readDone = make(chan struct{})
	s.safety = time.AfterFunc(s.maxDuration, func() {
		s.logger.Warn("capture safety timeout, forcing stop", "after", s.maxDuration)
		if _, err := s.Stop(); err != nil {
			s.logger.Error("safety stop failed", "error", err)
		}
	})
	s.mu.Unlock()

	go s.collect(readCtx, stream, s.readDone)

	s.logger.Info("recording started", "mime", mime, "device", s.device.Name())
	return nil
}

func (s *Session) collect(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)

	for {
		chunk, err := stream.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.logger.Error("reading capture stream", "error", err)
			s.failCollecting(err)
			return
		}
		s.mu.Lock()
		if s.state == StateRecording {
			s.chunks = append(s.chunks, chunk)
		}
		s.mu.Unlock()
	}
}

// failCollecting finalizes the session as Failed after a mid-recording
// device fault.
func (s *Session) failCollecting(cause error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.failure = domain.NewCaptureError(domain.CaptureRecorderFault, cause)
	if s.safety != nil {
		s.safety.Stop()
	}
	stream := s.stream
	s.stream = nil
	done := s.done
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("closing stream after fault", "error", err)
		}
	}
	close(done)
}

// Stop finalizes the current recording. On an Idle, Completed, or Failed
// session it is a no-op returning the session's last result (nil when there
// never was one). Blobs under the minimum size fail with TooShort rather
// than producing an unusable recording.
func (s *Session) Stop() (*domain.Recording, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateCompleted:
		result := s.result
		s.mu.Unlock()
		return result, nil
	case StateFailed:
		failure := s.failure
		s.mu.Unlock()
		return nil, failure
	case StateStopping:
		done := s.done
		s.mu.Unlock()
		<-done
		return s.Result()
	case StateRequesting:
		// The device has not opened yet; no audio ever existed. Finish the
		// attempt here and let the parked Start observe it via the epoch.
		s.state = StateFailed
		s.failure = domain.NewCaptureError(domain.CaptureTooShort,
			errors.New("stopped while waiting for the device, no audio captured"))
		failure := s.failure
		close(s.done)
		s.mu.Unlock()
		return nil, failure
	}

	s.state = StateStopping
	if s.safety != nil {
		s.safety.Stop()
		s.safety = nil
	}
	cancel := s.readCancel
	readDone := s.readDone
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if readDone != nil {
		<-readDone
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("releasing capture device", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := finalize(stream, s.chunks)
	if err != nil {
		s.state = StateFailed
		s.failure = domain.NewCaptureError(domain.CaptureRecorderFault, err)
		close(s.done)
		return nil, s.failure
	}

	if len(blob) < s.minBytes {
		s.state = StateFailed
		s.failure = domain.NewCaptureError(domain.CaptureTooShort,
			fmt.Errorf("recording %d bytes, need at least %d", len(blob), s.minBytes))
		close(s.done)
		return nil, s.failure
	}

	s.state = StateCompleted
	s.result = &domain.Recording{Data: blob, MIMEType: s.mimeType}
	close(s.done)

	s.logger.Info("recording completed", "bytes", len(blob), "mime", s.mimeType)
	return s.result, nil
}

func negotiate(device Device) (string, bool) {
	for _, mime := range domain.CaptureMIMEPreference {
		if device.Supports(mime) {
			return mime, true
		}
	}
	return "", false
}

func finalize(stream Stream, chunks [][]byte) ([]byte, error) {
	if c, ok := stream.(Containerizer); ok {
		return c.Containerize(chunks)
	}
	return bytes.Join(chunks, nil), nil
}

func classifyOpenError(err error) *domain.CaptureError {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return domain.NewCaptureError(domain.CapturePermissionDenied, err)
	case errors.Is(err, ErrDeviceNotFound):
		return domain.NewCaptureError(domain.CaptureDeviceNotFound, err)
	default:
		return domain.NewCaptureError(domain.CaptureRecorderFault, err)
	}
}
