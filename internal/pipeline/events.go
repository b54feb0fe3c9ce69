package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// State of the orchestrator's run-level machine.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateEvaluating   State = "evaluating"
	StateSynthesizing State = "synthesizing"
	StatePlaying      State = "playing"
	StateError        State = "error"
)

// Event is pushed to observers on every state transition. Consumption is
// optional; observers must not block and cannot affect the run.
type Event struct {
	RunID  uuid.UUID `json:"run_id"`
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// Observer receives status events. Registered once, called on the run's
// goroutine.
type Observer func(Event)
