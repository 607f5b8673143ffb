package port

import (
	"context"
	"time"
)

// QualityMetrics describes the signal quality of one audio sample.
type QualityMetrics struct {
	SNRdB    float64
	Duration time.Duration
}

// EnrollmentScorer turns raw audio into an embedding with quality metrics.
// Backed by an external model service; the engine treats it as a black box.
type EnrollmentScorer interface {
	EmbedAndQuality(ctx context.Context, audio []byte) ([]float64, QualityMetrics, error)
}

// VerificationScorer exposes the three independent scoring signals. The
// calls are pure functions of the same audio and may run concurrently; each
// returns a value in [0,1]. A scorer failure is a scoring failure for the
// enclosing attempt, never an implicit accept.
type VerificationScorer interface {
	Similarity(ctx context.Context, audio []byte, voiceprint []float64) (float64, error)
	SpoofProbability(ctx context.Context, audio []byte) (float64, error)
	PhraseMatch(ctx context.Context, audio []byte, expectedText string) (float64, error)
}
