package domain

import (
	"time"

	"github.com/google/uuid"
)

// Proposal is a user-submitted text evaluated for constitutional alignment.
// Immutable once created.
type Proposal struct {
	ID          uuid.UUID
	Text        string
	SubmittedAt time.Time
}

func NewProposal(text string) Proposal {
	return Proposal{
		ID:          uuid.New(),
		Text:        text,
		SubmittedAt: time.Now().UTC(),
	}
}

// Scores holds the three weighted criterion scores and their weighted total,
// all in [0,1].
type Scores struct {
	Value      float64 `json:"value"`
	Fairness   float64 `json:"fairness"`
	Protection float64 `json:"protection"`
	Total      float64 `json:"total"`
}

// Criterion weights. They must sum to 1.
const (
	WeightValue      = 0.35
	WeightFairness   = 0.35
	WeightProtection = 0.30
)

// Decision thresholds.
const (
	ApprovalThreshold  = 0.70
	ConsensusThreshold = 0.90
)

// Evaluation is the outcome of scoring one Proposal. Created once by the
// scoring engine and never mutated afterwards.
type Evaluation struct {
	Scores         Scores  `json:"scores"`
	ConsensusIndex float64 `json:"consensusIndex"`
	Approved       bool    `json:"approved"`
	HighConsensus  bool    `json:"highConsensus"`
	ResponseText   string  `json:"response"`
}
