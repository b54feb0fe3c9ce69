package capture_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"agora/internal/capture"
	"agora/internal/domain"
)

type fakeStream struct {
	chunk  []byte
	every  time.Duration
	closed bool
}

func (f *fakeStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.every):
		return append([]byte(nil), f.chunk...), nil
	}
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeDevice struct {
	supported map[string]bool
	openErr   error
	stream    *fakeStream
	opened    []string
}

func (f *fakeDevice) Name() string { return "fake" }

func (f *fakeDevice) Supports(mime string) bool { return f.supported[mime] }

func (f *fakeDevice) Open(_ context.Context, mime string, _ capture.Constraints) (capture.Stream, error) {
	f.opened = append(f.opened, mime)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bigChunk() []byte {
	return bytes.Repeat([]byte{0xAB}, 600)
}

func TestSession_StopWhileIdleIsNoop(t *testing.T) {
	s := capture.NewSession(&fakeDevice{}, testLogger())

	rec, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil recording, got %d bytes", len(rec.Data))
	}
	if s.State() != capture.StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestSession_RecordsAndFinalizes(t *testing.T) {
	stream := &fakeStream{chunk: bigChunk(), every: 5 * time.Millisecond}
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWebMOpus: true},
		stream:    stream,
	}

	s := capture.NewSession(dev, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != capture.StateRecording {
		t.Fatalf("state = %s, want recording", s.State())
	}

	time.Sleep(50 * time.Millisecond)

	rec, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if rec == nil || len(rec.Data) < 1000 {
		t.Fatalf("expected blob of at least 1000 bytes")
	}
	if rec.MIMEType != domain.MIMEWebMOpus {
		t.Fatalf("mime = %q, want %q", rec.MIMEType, domain.MIMEWebMOpus)
	}
	if !stream.closed {
		t.Fatal("device not released")
	}
	if s.State() != capture.StateCompleted {
		t.Fatalf("state = %s, want completed", s.State())
	}
}

func TestSession_NegotiatesFirstSupportedMIME(t *testing.T) {
	dev := &fakeDevice{
		supported: map[string]bool{
			domain.MIMEMP4: true,
			domain.MIMEWav: true,
		},
		stream: &fakeStream{chunk: bigChunk(), every: 5 * time.Millisecond},
	}

	s := capture.NewSession(dev, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if len(dev.opened) != 1 || dev.opened[0] != domain.MIMEMP4 {
		t.Fatalf("opened with %v, want [%s]", dev.opened, domain.MIMEMP4)
	}
}

func TestSession_NoSupportedMIMEFails(t *testing.T) {
	dev := &fakeDevice{supported: map[string]bool{}}
	s := capture.NewSession(dev, testLogger())

	err := s.Start(context.Background())
	if !domain.IsCaptureKind(err, domain.CaptureRecorderFault) {
		t.Fatalf("expected recorder fault, got %v", err)
	}
}

func TestSession_TooShortRecordingFails(t *testing.T) {
	stream := &fakeStream{chunk: []byte{1, 2, 3}, every: 5 * time.Millisecond}
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWav: true},
		stream:    stream,
	}

	s := capture.NewSession(dev, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	rec, err := s.Stop()
	if rec != nil {
		t.Fatal("too-short recording must not produce a blob")
	}
	if !domain.IsCaptureKind(err, domain.CaptureTooShort) {
		t.Fatalf("expected TooShort, got %v", err)
	}
	if !stream.closed {
		t.Fatal("device not released on failure")
	}
}

func TestSession_PermissionDenied(t *testing.T) {
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWav: true},
		openErr:   capture.ErrPermissionDenied,
	}

	s := capture.NewSession(dev, testLogger())
	err := s.Start(context.Background())
	if !domain.IsCaptureKind(err, domain.CapturePermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	var ce *domain.CaptureError
	if !errors.As(err, &ce) || ce.Cause == nil {
		t.Fatal("cause not attached")
	}
}

func TestSession_DeviceNotFound(t *testing.T) {
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWav: true},
		openErr:   capture.ErrDeviceNotFound,
	}

	s := capture.NewSession(dev, testLogger())
	err := s.Start(context.Background())
	if !domain.IsCaptureKind(err, domain.CaptureDeviceNotFound) {
		t.Fatalf("expected device not found, got %v", err)
	}
}

func TestSession_RestartStopsLiveRecording(t *testing.T) {
	first := &fakeStream{chunk: bigChunk(), every: 5 * time.Millisecond}
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWav: true},
		stream:    first,
	}

	s := capture.NewSession(dev, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	second := &fakeStream{chunk: bigChunk(), every: 5 * time.Millisecond}
	dev.stream = second
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer s.Stop()

	if !first.closed {
		t.Fatal("first stream not stopped before restart")
	}
	if s.State() != capture.StateRecording {
		t.Fatalf("state = %s, want recording", s.State())
	}
}

// blockingDevice parks every Open until the gate is closed, standing in for
// a permission prompt the user has not answered yet.
type blockingDevice struct {
	gate chan struct{}

	mu      sync.Mutex
	streams []*fakeStream
}

func (d *blockingDevice) Name() string { return "blocking" }

func (d *blockingDevice) Supports(mime string) bool { return mime == domain.MIMEWav }

func (d *blockingDevice) Open(ctx context.Context, _ string, _ capture.Constraints) (capture.Stream, error) {
	st := &fakeStream{chunk: bigChunk(), every: 5 * time.Millisecond}
	d.mu.Lock()
	d.streams = append(d.streams, st)
	d.mu.Unlock()

	select {
	case <-d.gate:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *blockingDevice) openCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *blockingDevice) closedStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, st := range d.streams {
		if st.closed {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_StopWhileRequesting(t *testing.T) {
	dev := &blockingDevice{gate: make(chan struct{})}
	s := capture.NewSession(dev, testLogger())

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start(context.Background()) }()

	waitFor(t, func() bool { return dev.openCalls() == 1 }, "open to park")

	rec, err := s.Stop()
	if rec != nil {
		t.Fatal("stop before the device opened must not produce a blob")
	}
	if !domain.IsCaptureKind(err, domain.CaptureTooShort) {
		t.Fatalf("expected TooShort, got %v", err)
	}

	close(dev.gate)
	if err := <-startErr; err == nil {
		t.Fatal("Start must report the stopped attempt")
	}
	if s.State() != capture.StateFailed {
		t.Fatalf("state = %s, want failed after Start returned", s.State())
	}
	if dev.closedStreams() != 1 {
		t.Fatal("device not released after the stopped open")
	}

	// A further Stop reports the same failure and must not panic.
	if _, err := s.Stop(); !domain.IsCaptureKind(err, domain.CaptureTooShort) {
		t.Fatalf("expected TooShort from repeated stop, got %v", err)
	}
}

func TestSession_RestartWhileRequesting(t *testing.T) {
	dev := &blockingDevice{gate: make(chan struct{})}
	s := capture.NewSession(dev, testLogger())

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Start(context.Background()) }()

	waitFor(t, func() bool { return dev.openCalls() == 1 }, "first open to park")

	// The second Start aborts the parked attempt and opens its own stream;
	// its Open only parks after that abort, so two calls prove the handover.
	secondErr := make(chan error, 1)
	go func() { secondErr <- s.Start(context.Background()) }()

	waitFor(t, func() bool { return dev.openCalls() == 2 }, "second open to park")
	close(dev.gate)

	if err := <-firstErr; err == nil {
		t.Fatal("first Start must report the aborted attempt")
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second start: %v", err)
	}

	waitFor(t, func() bool { return s.State() == capture.StateRecording }, "recording state")
	if dev.closedStreams() != 1 {
		t.Fatalf("superseded stream not released (closed %d of 2)", dev.closedStreams())
	}

	if _, err := s.Stop(); err != nil {
		// Under a fast scheduler almost no audio accumulates; TooShort is
		// the only acceptable failure here.
		if !domain.IsCaptureKind(err, domain.CaptureTooShort) {
			t.Fatalf("stop: %v", err)
		}
	}
}

func TestSession_SafetyTimeoutForcesStop(t *testing.T) {
	stream := &fakeStream{chunk: bigChunk(), every: 2 * time.Millisecond}
	dev := &fakeDevice{
		supported: map[string]bool{domain.MIMEWav: true},
		stream:    stream,
	}

	s := capture.NewSession(dev, testLogger())
	s.SetLimits(capture.DefaultTimeslice, 40*time.Millisecond)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("safety timer never fired")
	}

	rec, err := s.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a finalized recording after forced stop")
	}
}
