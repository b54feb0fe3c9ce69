package scoring

import (
	"fmt"

	"agora/internal/domain"
)

// Response templates keyed on approval, the weakest criterion, and the
// strongest criterion. Selection is purely a function of the Evaluation, so
// the same scores always produce the same sentence.

const criterionNames = 3

const (
	criterionValue = iota
	criterionFairness
	criterionProtection
)

var criterionLabel = [criterionNames]string{"shared value", "fairness", "protection of the vulnerable"}

var approvedTemplates = [criterionNames]string{
	criterionValue:      "The council approves this proposal. It stands strongest on %s, though its contribution to shared value could deepen.",
	criterionFairness:   "The council approves this proposal. It stands strongest on %s, though the balance of fairness deserves continued attention.",
	criterionProtection: "The council approves this proposal. It stands strongest on %s, though protections for the vulnerable should be watched as it unfolds.",
}

var rejectedTemplates = [criterionNames]string{
	criterionValue:      "The council cannot approve this proposal as written. Its weakest ground is shared value; strengthen the collective benefit and resubmit.",
	criterionFairness:   "The council cannot approve this proposal as written. Its weakest ground is fairness; address the unequal burden it creates and resubmit.",
	criterionProtection: "The council cannot approve this proposal as written. Its weakest ground is protection; shield those most exposed and resubmit.",
}

const consensusSuffix = " The three criteria speak with one voice on this matter."

func responseFor(eval domain.Evaluation) string {
	lowest, highest := extremes(eval.Scores)

	var text string
	if eval.Approved {
		text = fmt.Sprintf(approvedTemplates[highest], criterionLabel[highest])
	} else {
		text = rejectedTemplates[lowest]
	}

	if eval.HighConsensus {
		text += consensusSuffix
	}
	return text
}

func extremes(s domain.Scores) (lowest, highest int) {
	scores := [criterionNames]float64{s.Value, s.Fairness, s.Protection}
	for i := 1; i < criterionNames; i++ {
		if scores[i] < scores[lowest] {
			lowest = i
		}
		if scores[i] > scores[highest] {
			highest = i
		}
	}
	return lowest, highest
}
