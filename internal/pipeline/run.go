package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"agora/internal/domain"
)

// Run is one pass through capture → transcribe → evaluate → synthesize →
// play. Exactly one run is active at a time; a superseded run finishes with
// domain.ErrRunSuperseded.
type Run struct {
	ID uuid.UUID

	mu         sync.Mutex
	proposal   domain.Proposal
	evaluation *domain.Evaluation
	audioURL   string
	notice     string
	err        error
	done       chan struct{}
}

func newRun() *Run {
	return &Run{ID: uuid.New(), done: make(chan struct{})}
}

// NewFinishedRun returns an already-terminal run. Fakes standing in for the
// orchestrator use it to hand back a completed run without driving the
// pipeline.
func NewFinishedRun() *Run {
	r := newRun()
	close(r.done)
	return r
}

// Done closes when the run reaches a terminal outcome.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) Proposal() domain.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposal
}

// Evaluation is non-nil once scoring finished, even when spoken delivery
// later failed.
func (r *Run) Evaluation() *domain.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evaluation
}

func (r *Run) AudioURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioURL
}

// Notice is the degraded-delivery message, empty when playback succeeded.
func (r *Run) Notice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

func (r *Run) setProposal(p domain.Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposal = p
}

func (r *Run) setEvaluation(e domain.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluation = &e
}

func (r *Run) setAudioURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioURL = url
}

func (r *Run) setNotice(notice string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notice = notice
}

func (r *Run) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return
	default:
	}
	r.err = err
	close(r.done)
}
