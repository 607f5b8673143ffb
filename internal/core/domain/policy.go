package domain

import "fmt"

// StrategyName selects a named threshold strategy.
type StrategyName string

const (
	StrategySecurityFirst  StrategyName = "security-first"
	StrategyEqualError     StrategyName = "equal-error"
	StrategyUsabilityFirst StrategyName = "usability-first"
)

// Thresholds is the concrete tuple a strategy maps to.
type Thresholds struct {
	Speaker float64
	Spoof   float64
	Text    float64
}

// MultiPhrasePolicy tunes the averaged multi-phrase decision. The spoof
// cutoff is deliberately independent from Thresholds.Spoof: the short-circuit
// uses its own, stricter value and the two are configured separately.
type MultiPhrasePolicy struct {
	PhraseCount   int
	Threshold     float64
	SpoofCutoff   float64
	PhrasePenalty float64
}

// ThresholdPolicy is the full decision configuration for one deployment.
type ThresholdPolicy struct {
	Strategy   StrategyName
	Thresholds Thresholds
	Multi      MultiPhrasePolicy
}

// Validate rejects tuples outside the unit interval and nonsensical multi
// settings before they can reach a decision path.
func (p ThresholdPolicy) Validate() error {
	for name, v := range map[string]float64{
		"speaker":      p.Thresholds.Speaker,
		"spoof":        p.Thresholds.Spoof,
		"text":         p.Thresholds.Text,
		"multi":        p.Multi.Threshold,
		"spoof_cutoff": p.Multi.SpoofCutoff,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s out of [0,1]: %v", name, v)
		}
	}
	if p.Multi.PhraseCount < 1 {
		return fmt.Errorf("multi phrase count must be positive: %d", p.Multi.PhraseCount)
	}
	if p.Multi.PhrasePenalty <= 0 || p.Multi.PhrasePenalty > 1 {
		return fmt.Errorf("phrase penalty out of (0,1]: %v", p.Multi.PhrasePenalty)
	}
	return nil
}

// Outcome is the result of evaluating signals against a policy.
type Outcome struct {
	Accepted bool
	Reason   DecisionReason
}

// Decider renders an accept/reject outcome from one utterance's signals.
// Two implementations exist behind this interface: the hard cascade used by
// single-phrase verification and the penalized per-phrase scorer feeding the
// multi-phrase average.
type Decider interface {
	Decide(scores SignalScores) Outcome
}

// CascadeDecider accepts iff every signal individually passes its threshold,
// evaluated in a fixed order so the first failing condition names the reason.
type CascadeDecider struct {
	Thresholds Thresholds
}

func (d CascadeDecider) Decide(scores SignalScores) Outcome {
	switch {
	case scores.Similarity < d.Thresholds.Speaker:
		return Outcome{Reason: ReasonLowSimilarity}
	case scores.SpoofProb >= d.Thresholds.Spoof:
		return Outcome{Reason: ReasonSpoof}
	case scores.PhraseMatch < d.Thresholds.Text:
		return Outcome{Reason: ReasonBadPhrase}
	}
	return Outcome{Accepted: true, Reason: ReasonOK}
}

// PhraseScore computes the composite per-phrase contribution for a
// multi-phrase session. A weak phrase match multiplies the similarity
// contribution by the penalty factor instead of hard-rejecting, tolerating
// minor transcription noise while still punishing mismatches.
func PhraseScore(scores SignalScores, textThreshold, penalty float64) float64 {
	if scores.PhraseMatch < textThreshold {
		return scores.Similarity * penalty
	}
	return scores.Similarity
}

// SpoofShortCircuit reports whether a single phrase's spoof probability is
// convincing enough to reject the entire session immediately.
func SpoofShortCircuit(scores SignalScores, cutoff float64) bool {
	return scores.SpoofProb >= cutoff
}
