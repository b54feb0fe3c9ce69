package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agora/internal/domain"
)

// DefaultTranscriptionTimeout bounds one transcription request. Synthesis
// and playback have no hard timeout; they fail only by rejection.
const DefaultTranscriptionTimeout = 30 * time.Second

// Orchestrator owns the run-level state machine:
// Idle → Recording → Transcribing → Evaluating → Synthesizing → Playing → Idle,
// with Error reachable from any non-Idle state. It enforces a single active
// run; a new run stops the prior run's capture and playback and discards any
// result its in-flight requests later produce.
type Orchestrator struct {
	capture     Capture
	transcriber Transcriber
	scorer      Scorer
	synth       Synthesizer
	publisher   AudioPublisher
	player      Player
	notifier    Notifier
	logger      *slog.Logger

	transcriptionTimeout time.Duration

	mu        sync.Mutex
	state     State
	run       *Run
	gen       uint64
	observers []Observer
}

func NewOrchestrator(
	capture Capture,
	transcriber Transcriber,
	scorer Scorer,
	synth Synthesizer,
	publisher AudioPublisher,
	player Player,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		capture:              capture,
		transcriber:          transcriber,
		scorer:               scorer,
		synth:                synth,
		publisher:            publisher,
		player:               player,
		notifier:             notifier,
		logger:               logger,
		transcriptionTimeout: DefaultTranscriptionTimeout,
		state:                StateIdle,
	}
}

// SetTranscriptionTimeout overrides the transcription deadline. Tests
// shorten it.
func (o *Orchestrator) SetTranscriptionTimeout(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcriptionTimeout = d
}

// Subscribe registers an observer for status events. Observers registered
// after a run started see only subsequent transitions.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ActiveRun returns the run currently owning the pipeline, nil when Idle.
func (o *Orchestrator) ActiveRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Gesture forwards a user interaction to the playback gate.
func (o *Orchestrator) Gesture() {
	o.player.Gesture()
}

// StopCapture finalizes an in-progress recording; the run then proceeds to
// transcription. A no-op when nothing is recording.
func (o *Orchestrator) StopCapture() {
	if _, err := o.capture.Stop(); err != nil {
		o.logger.Debug("stop capture", "error", err)
	}
}

// StartVoice begins a full voice run: capture until StopCapture or the
// session's safety timer, then transcribe, evaluate, synthesize, play.
func (o *Orchestrator) StartVoice(ctx context.Context) (*Run, error) {
	run, gen := o.takeover()

	if !o.transition(gen, run, StateRecording, "listening", nil) {
		run.finish(domain.ErrRunSuperseded)
		return run, domain.ErrRunSuperseded
	}
	if err := o.capture.Start(ctx); err != nil {
		o.fail(gen, run, "capture failed", err)
		return run, err
	}

	go func() {
		select {
		case <-o.capture.Done():
		case <-ctx.Done():
			o.StopCapture()
		}

		rec, err := o.capture.Result()
		if !o.owns(gen) {
			run.finish(domain.ErrRunSuperseded)
			return
		}
		if err != nil {
			o.fail(gen, run, "capture failed", err)
			return
		}
		if rec == nil {
			o.fail(gen, run, "capture produced no audio", errors.New("empty recording"))
			return
		}
		o.continueFromRecording(ctx, gen, run, *rec)
	}()

	return run, nil
}

// SubmitRecording runs the pipeline on an already-captured blob (HTTP voice
// submissions, drop-dir files).
func (o *Orchestrator) SubmitRecording(ctx context.Context, rec domain.Recording) (*Run, error) {
	if len(rec.Data) == 0 {
		return nil, domain.NewCaptureError(domain.CaptureTooShort, errors.New("empty recording"))
	}
	run, gen := o.takeover()
	go o.continueFromRecording(ctx, gen, run, rec)
	return run, nil
}

// Submit runs the pipeline on proposal text, skipping capture and
// transcription.
func (o *Orchestrator) Submit(ctx context.Context, text string) (*Run, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyProposal
	}
	run, gen := o.takeover()
	go o.continueFromText(ctx, gen, run, text)
	return run, nil
}

// takeover makes a fresh run the single active one, stopping the prior
// run's capture and playback. In-flight network work of the prior run is
// left to finish; the generation check discards its result.
func (o *Orchestrator) takeover() (*Run, uint64) {
	o.mu.Lock()
	prior := o.run
	o.gen++
	gen := o.gen
	run := newRun()
	o.run = run
	o.state = StateIdle
	o.mu.Unlock()

	if prior != nil {
		o.StopCapture()
		o.player.Stop()
	}
	return run, gen
}

func (o *Orchestrator) continueFromRecording(ctx context.Context, gen uint64, run *Run, rec domain.Recording) {
	if !o.transition(gen, run, StateTranscribing, fmt.Sprintf("%d bytes of %s", len(rec.Data), rec.MIMEType), nil) {
		run.finish(domain.ErrRunSuperseded)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, o.transcriptionTimeout)
	text, err := o.transcriber.Transcribe(tctx, rec)
	cancel()

	if !o.owns(gen) {
		run.finish(domain.ErrRunSuperseded)
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewNetworkError(domain.NetworkTimeout, err)
		}
		o.fail(gen, run, "transcription failed", err)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		o.fail(gen, run, "nothing was said", domain.ErrEmptyProposal)
		return
	}

	o.continueFromText(ctx, gen, run, text)
}

func (o *Orchestrator) continueFromText(ctx context.Context, gen uint64, run *Run, text string) {
	proposal := domain.NewProposal(text)
	run.setProposal(proposal)

	if !o.transition(gen, run, StateEvaluating, text, nil) {
		run.finish(domain.ErrRunSuperseded)
		return
	}

	eval := o.scorer.Evaluate(text)
	run.setEvaluation(eval)

	if !o.owns(gen) {
		run.finish(domain.ErrRunSuperseded)
		return
	}

	o.logger.Info("proposal evaluated",
		"run", run.ID,
		"total", eval.Scores.Total,
		"approved", eval.Approved,
		"consensus", eval.ConsensusIndex,
	)

	if !o.transition(gen, run, StateSynthesizing, "", nil) {
		run.finish(domain.ErrRunSuperseded)
		return
	}

	audio, err := o.synth.Synthesize(ctx, domain.SynthesisRequest{Text: eval.ResponseText})
	if !o.owns(gen) {
		run.finish(domain.ErrRunSuperseded)
		return
	}
	if err != nil {
		o.degrade(gen, run, "speech synthesis unavailable, text response delivered", err)
		return
	}

	url := audio.URL
	if url == "" {
		url, err = o.publisher.Publish(ctx, run.ID.String(), audio)
		if err != nil {
			o.degrade(gen, run, "audio could not be published, text response delivered", err)
			return
		}
	}
	if url == "" {
		o.degrade(gen, run, "spoken delivery disabled, text response delivered", nil)
		return
	}
	run.setAudioURL(url)

	if !o.transition(gen, run, StatePlaying, url, nil) {
		run.finish(domain.ErrRunSuperseded)
		return
	}

	if err := o.player.Play(ctx, url); err != nil {
		if !o.owns(gen) {
			run.finish(domain.ErrRunSuperseded)
			return
		}
		o.degrade(gen, run, "playback failed, text response delivered", err)
		return
	}

	if !o.owns(gen) {
		run.finish(domain.ErrRunSuperseded)
		return
	}
	o.complete(gen, run, eval.ResponseText)
}

// fail aborts the run: Error with the cause, then back to Idle, one
// human-readable status line.
func (o *Orchestrator) fail(gen uint64, run *Run, detail string, err error) {
	o.transition(gen, run, StateError, detail, err)
	o.transition(gen, run, StateIdle, "", nil)
	run.finish(err)

	status := fmt.Sprintf("Run failed: %s", detail)
	o.logger.Error("run failed", "run", run.ID, "detail", detail, "error", err)
	if nerr := o.notifier.Notify(context.Background(), status); nerr != nil {
		o.logger.Warn("notifying failure", "error", nerr)
	}
	o.release(gen)
}

// degrade finishes the run with its textual outcome intact; only the spoken
// delivery is skipped, with a distinct notice.
func (o *Orchestrator) degrade(gen uint64, run *Run, notice string, cause error) {
	run.setNotice(notice)
	o.transition(gen, run, StateIdle, notice, cause)
	run.finish(nil)

	if cause != nil {
		o.logger.Warn("degraded delivery", "run", run.ID, "notice", notice, "error", cause)
	}
	if eval := run.Evaluation(); eval != nil {
		msg := fmt.Sprintf("%s (%s)", eval.ResponseText, notice)
		if err := o.notifier.Notify(context.Background(), msg); err != nil {
			o.logger.Warn("notifying degraded result", "error", err)
		}
	}
	o.release(gen)
}

func (o *Orchestrator) complete(gen uint64, run *Run, response string) {
	o.transition(gen, run, StateIdle, "delivered", nil)
	run.finish(nil)

	if err := o.notifier.Notify(context.Background(), response); err != nil {
		o.logger.Warn("notifying result", "error", err)
	}
	o.release(gen)
}

// release clears the active run pointer if this generation still owns it.
func (o *Orchestrator) release(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen == gen {
		o.run = nil
	}
}

func (o *Orchestrator) owns(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// transition moves the state machine and emits one event, unless the run
// was superseded.
func (o *Orchestrator) transition(gen uint64, run *Run, state State, detail string, cause error) bool {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return false
	}
	o.state = state
	observers := o.observers
	o.mu.Unlock()

	ev := Event{
		RunID:  run.ID,
		State:  state,
		Detail: detail,
		Time:   time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}

	o.logger.Debug("pipeline transition", "run", run.ID, "state", state, "detail", detail)
	for _, obs := range observers {
		obs(ev)
	}
	return true
}
