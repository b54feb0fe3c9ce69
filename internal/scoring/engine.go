package scoring

import (
	"math/rand"
	"strings"
	"sync"

	"agora/internal/domain"
)

// Strategy maps proposal text to an Evaluation. Implementations must be
// deterministic given their own internal state; callers validate that text is
// non-empty before invoking.
type Strategy interface {
	Evaluate(text string) domain.Evaluation
}

// Base score ranges for the heuristic strategy. The draw is a placeholder for
// real evaluation, not NLP.
const (
	valueBase      = 0.70
	valueSpread    = 0.20
	fairnessBase   = 0.60
	fairnessSpread = 0.30
	protectionBase = 0.70
	protectionSpan = 0.25
)

// Keyword boosts applied on a case-insensitive substring match, once per
// category regardless of how many terms match.
const (
	valueBoost      = 0.10
	fairnessBoost   = 0.15
	protectionBoost = 0.12
)

var (
	valueTerms      = []string{"value", "benefit", "improve", "growth", "efficien", "innovat", "prosper"}
	fairnessTerms   = []string{"fair", "equal", "equit", "justice", "transparent", "inclusive", "vote", "voting"}
	protectionTerms = []string{"protect", "safe", "secur", "privacy", "rights", "defend", "guard"}
)

// Heuristic is the shipped Strategy: randomized base scores from fixed
// ranges, keyword boosts, and the weighted constitutional formula.
type Heuristic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeuristic builds a Heuristic drawing from rng. Pass a seeded source in
// tests for reproducible scores.
func NewHeuristic(rng *rand.Rand) *Heuristic {
	return &Heuristic{rng: rng}
}

func (h *Heuristic) Evaluate(text string) domain.Evaluation {
	h.mu.Lock()
	value := valueBase + h.rng.Float64()*valueSpread
	fairness := fairnessBase + h.rng.Float64()*fairnessSpread
	protection := protectionBase + h.rng.Float64()*protectionSpan
	h.mu.Unlock()

	lower := strings.ToLower(text)
	if containsAny(lower, valueTerms) {
		value += valueBoost
	}
	if containsAny(lower, fairnessTerms) {
		fairness += fairnessBoost
	}
	if containsAny(lower, protectionTerms) {
		protection += protectionBoost
	}

	return Compose(value, fairness, protection)
}

// Compose derives a full Evaluation from three raw criterion scores. Scores
// are capped at 1.0 and clamped non-negative before the weighted total and
// consensus index are computed, so an out-of-range input can never escape
// into an Evaluation.
func Compose(value, fairness, protection float64) domain.Evaluation {
	value = clamp01(value)
	fairness = clamp01(fairness)
	protection = clamp01(protection)

	total := value*domain.WeightValue +
		fairness*domain.WeightFairness +
		protection*domain.WeightProtection

	// 1 - 4*variance can go negative under high spread; clamp rather than
	// report a negative consensus.
	consensus := clamp01(1 - 4*populationVariance(value, fairness, protection))

	eval := domain.Evaluation{
		Scores: domain.Scores{
			Value:      value,
			Fairness:   fairness,
			Protection: protection,
			Total:      clamp01(total),
		},
		ConsensusIndex: consensus,
		Approved:       total >= domain.ApprovalThreshold,
		HighConsensus:  consensus >= domain.ConsensusThreshold,
	}
	eval.ResponseText = responseFor(eval)
	return eval
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func populationVariance(xs ...float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	return v / float64(len(xs))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
