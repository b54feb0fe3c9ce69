package playback_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agora/internal/domain"
	"agora/internal/playback"
)

type fakeOutput struct {
	onStream func(call int)

	mu          sync.Mutex
	streamErrs  []error
	streamCalls int
	pcmErr      error
	pcmCalls    int
	stops       int
	lastMIME    string
	lastSamples int
}

func (f *fakeOutput) Stream(_ context.Context, r io.Reader, mime string) error {
	f.mu.Lock()
	io.Copy(io.Discard, r)
	f.lastMIME = mime
	call := f.streamCalls
	f.streamCalls++
	var err error
	if call < len(f.streamErrs) {
		err = f.streamErrs[call]
	}
	f.mu.Unlock()

	if f.onStream != nil {
		f.onStream(call)
	}
	return err
}

func (f *fakeOutput) RenderPCM(_ context.Context, samples []int16, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcmCalls++
	f.lastSamples = len(samples)
	return f.pcmErr
}

func (f *fakeOutput) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeOutput) snapshot() (stream, pcm, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCalls, f.pcmCalls, f.stops
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wavFixture(t *testing.T) []byte {
	t.Helper()
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 32)
	}

	var buf bytes.Buffer
	dataSize := len(samples) * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(16000))
	binary.Write(&buf, binary.LittleEndian, int32(32000))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func audioServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlay_DirectStrategySucceeds(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{}
	c := playback.NewController(srv.Client(), out, testLogger())

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("play: %v", err)
	}

	stream, pcm, _ := out.snapshot()
	if stream != 1 || pcm != 0 {
		t.Fatalf("stream=%d pcm=%d, want direct playback only", stream, pcm)
	}

	attempts := c.LastAttempts()
	if len(attempts) != 1 || attempts[0].Strategy != "direct" || attempts[0].Outcome != playback.OutcomeSuccess {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
}

func TestPlay_FallsThroughToBlob(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{streamErrs: []error{errors.New("element failed")}}
	c := playback.NewController(srv.Client(), out, testLogger())

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("play: %v", err)
	}

	attempts := c.LastAttempts()
	if len(attempts) != 2 {
		t.Fatalf("want 2 attempts, got %+v", attempts)
	}
	if attempts[0].Strategy != "direct" || attempts[0].Outcome != playback.OutcomeFailed {
		t.Fatalf("first attempt: %+v", attempts[0])
	}
	if attempts[1].Strategy != "blob" || attempts[1].Outcome != playback.OutcomeSuccess {
		t.Fatalf("second attempt: %+v", attempts[1])
	}
}

func TestPlay_BufferStrategyDecodes(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{streamErrs: []error{errors.New("a"), errors.New("b")}}
	c := playback.NewController(srv.Client(), out, testLogger())

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("play: %v", err)
	}

	_, pcm, _ := out.snapshot()
	if pcm != 1 {
		t.Fatalf("pcm calls = %d, want 1", pcm)
	}
	out.mu.Lock()
	samples := out.lastSamples
	out.mu.Unlock()
	if samples != 1600 {
		t.Fatalf("decoded %d samples, want 1600", samples)
	}
}

func TestPlay_AllStrategiesExhausted(t *testing.T) {
	srv := audioServer(t, []byte("not audio at all"))
	out := &fakeOutput{streamErrs: []error{errors.New("a"), errors.New("b")}}
	c := playback.NewController(srv.Client(), out, testLogger())

	err := c.Play(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrAllStrategiesExhausted) {
		t.Fatalf("want ErrAllStrategiesExhausted, got %v", err)
	}

	attempts := c.LastAttempts()
	if len(attempts) != 3 {
		t.Fatalf("want 3 attempts, got %+v", attempts)
	}
}

func TestPlay_BlockedWithoutGestureMovesToNextStrategyOnce(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{streamErrs: []error{domain.ErrNotAllowed}}
	c := playback.NewController(srv.Client(), out, testLogger())
	c.SetGestureWait(30 * time.Millisecond)

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("play: %v", err)
	}

	attempts := c.LastAttempts()
	if len(attempts) != 2 {
		t.Fatalf("want blocked then blob, got %+v", attempts)
	}
	if attempts[0].Outcome != playback.OutcomeBlocked {
		t.Fatalf("first attempt outcome: %+v", attempts[0])
	}
	if attempts[1].Strategy != "blob" || attempts[1].Outcome != playback.OutcomeSuccess {
		t.Fatalf("second attempt: %+v", attempts[1])
	}

	blobAttempts := 0
	for _, a := range attempts {
		if a.Strategy == "blob" {
			blobAttempts++
		}
	}
	if blobAttempts != 1 {
		t.Fatalf("strategy 2 attempted %d times, want exactly once", blobAttempts)
	}
}

func TestPlay_GestureRetriesSameStrategy(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{streamErrs: []error{domain.ErrNotAllowed}}
	c := playback.NewController(srv.Client(), out, testLogger())
	c.SetGestureWait(2 * time.Second)

	done := make(chan error, 1)
	go func() { done <- c.Play(context.Background(), srv.URL) }()

	// Let the first attempt block, then simulate the user gesture.
	time.Sleep(50 * time.Millisecond)
	c.Gesture()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("play: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("play did not finish after gesture")
	}

	attempts := c.LastAttempts()
	last := attempts[len(attempts)-1]
	if last.Strategy != "direct" || last.Outcome != playback.OutcomeSuccess {
		t.Fatalf("gesture should retry the same strategy: %+v", attempts)
	}
}

func TestPlay_GestureDuringBlockedAttemptIsNotLost(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{streamErrs: []error{domain.ErrNotAllowed}}
	c := playback.NewController(srv.Client(), out, testLogger())
	// Short window: a dropped gesture would expire it and fall to blob.
	c.SetGestureWait(20 * time.Millisecond)

	// The gesture lands while the first attempt is still rejecting, before
	// the blocked continuation parks.
	out.onStream = func(call int) {
		if call == 0 {
			c.Gesture()
		}
	}

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("play: %v", err)
	}

	attempts := c.LastAttempts()
	last := attempts[len(attempts)-1]
	if last.Strategy != "direct" || last.Outcome != playback.OutcomeSuccess {
		t.Fatalf("early gesture should retry the same strategy: %+v", attempts)
	}
	for _, a := range attempts {
		if a.Strategy != "direct" {
			t.Fatalf("fell through despite the gesture: %+v", attempts)
		}
	}
}

func TestStop_Idempotent(t *testing.T) {
	out := &fakeOutput{}
	c := playback.NewController(nil, out, testLogger())

	c.Stop()
	_, _, stopsOnce := out.snapshot()

	c.Stop()
	_, _, stopsTwice := out.snapshot()

	// The second call reaches the output too but changes nothing observable:
	// no active handle existed either time.
	if stopsTwice-stopsOnce != 1 {
		t.Fatalf("stop should remain callable: %d then %d", stopsOnce, stopsTwice)
	}
	if len(c.LastAttempts()) != 0 {
		t.Fatal("stop must not create attempts")
	}
}

func TestPlay_StopsPriorPlayback(t *testing.T) {
	srv := audioServer(t, wavFixture(t))
	out := &fakeOutput{}
	c := playback.NewController(srv.Client(), out, testLogger())

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("first play: %v", err)
	}
	_, _, stopsBefore := out.snapshot()

	if err := c.Play(context.Background(), srv.URL); err != nil {
		t.Fatalf("second play: %v", err)
	}
	_, _, stopsAfter := out.snapshot()

	if stopsAfter <= stopsBefore {
		t.Fatal("second play must stop the prior handle first")
	}
}
