package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agora/internal/domain"
)

// Outcome of a single playback attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
)

// Attempt records one try of one strategy within a Play call.
type Attempt struct {
	Strategy string
	Number   int
	Outcome  Outcome
	Err      error
}

// Output renders audio to the user. Implementations: portaudio speaker
// (build tag) with a stub, fakes in tests. An Output that refuses to start
// unattended returns an error wrapping domain.ErrNotAllowed.
type Output interface {
	// Stream plays containerized audio read from r until it ends naturally.
	Stream(ctx context.Context, r io.Reader, mimeType string) error
	// RenderPCM plays raw decoded samples through the device.
	RenderPCM(ctx context.Context, samples []int16, sampleRate int) error
	// Stop halts whatever is playing. Safe to call repeatedly.
	Stop()
}

// DefaultGestureWait is how long a blocked strategy waits for a user gesture
// before falling through to the next one.
const DefaultGestureWait = 10 * time.Second

// Controller plays a synthesized-audio URL through an ordered chain of
// fallback strategies. At most one playback is active; Play stops any prior
// one first. An autoplay-blocked strategy parks a single one-shot gesture
// continuation and retries the same strategy once before falling through.
type Controller struct {
	client      *http.Client
	output      Output
	logger      *slog.Logger
	gestureWait time.Duration
	strategies  []strategy
	gate        *GestureGate

	mu       sync.Mutex
	cancel   context.CancelFunc
	attempts []Attempt
}

func NewController(client *http.Client, output Output, logger *slog.Logger) *Controller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Controller{
		client:      client,
		output:      output,
		logger:      logger,
		gestureWait: DefaultGestureWait,
		gate:        NewGestureGate(),
	}
	c.strategies = []strategy{
		&directStrategy{client: client, output: output},
		&blobStrategy{client: client, output: output},
		&bufferStrategy{client: client, output: output},
	}
	return c
}

// SetGestureWait overrides the gesture window. Tests shorten it.
func (c *Controller) SetGestureWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gestureWait = d
}

// Gesture signals that a user interaction happened, releasing a parked
// autoplay-blocked continuation if one is waiting.
func (c *Controller) Gesture() {
	c.gate.Trigger()
}

// LastAttempts returns the attempt log of the most recent Play call.
func (c *Controller) LastAttempts() []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Attempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}

// Play resolves when playback completes naturally and errors only once
// every strategy has been exhausted.
func (c *Controller) Play(ctx context.Context, url string) error {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.attempts = nil
	wait := c.gestureWait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	for i, st := range c.strategies {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Armed before the attempt so a gesture arriving while the strategy
		// is still rejecting is not lost before the continuation parks.
		fired := c.gate.Arm()

		err := st.play(ctx, url)
		if err == nil {
			c.gate.Disarm()
			c.record(st.name(), i+1, OutcomeSuccess, nil)
			return nil
		}

		if errors.Is(err, domain.ErrNotAllowed) {
			c.record(st.name(), i+1, OutcomeBlocked, err)
			c.logger.Info("playback blocked, waiting for user gesture",
				"strategy", st.name(), "window", wait)

			retried, retryErr := c.retryOnGesture(ctx, st, url, wait, fired)
			if retried && retryErr == nil {
				c.record(st.name(), i+1, OutcomeSuccess, nil)
				return nil
			}
			if retried {
				c.record(st.name(), i+1, OutcomeFailed, retryErr)
			}
			// No gesture arrived, or the retry failed: fall through.
			continue
		}

		c.gate.Disarm()
		c.record(st.name(), i+1, OutcomeFailed, err)
		c.logger.Warn("playback strategy failed", "strategy", st.name(), "error", err)
	}

	return fmt.Errorf("%w (%d strategies tried)", domain.ErrAllStrategiesExhausted, len(c.strategies))
}

// retryOnGesture waits on the already-armed continuation and retries the same
// strategy exactly once if a gesture arrives within the window.
func (c *Controller) retryOnGesture(ctx context.Context, st strategy, url string, wait time.Duration, fired <-chan struct{}) (retried bool, err error) {
	defer c.gate.Disarm()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-fired:
		return true, st.play(ctx, url)
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, nil
	}
}

// Stop halts the active playback. Repeated calls have no further effect.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.output.Stop()
}

func (c *Controller) record(name string, number int, outcome Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, Attempt{Strategy: name, Number: number, Outcome: outcome, Err: err})
}
