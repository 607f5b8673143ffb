package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/port"
)

const (
	defaultReapInterval     = time.Hour
	defaultAttemptRetention = 14 * 24 * time.Hour
	defaultSampleRetention  = 24 * time.Hour
)

// ReaperService runs the periodic cleanup passes: finished challenges,
// decided attempts past retention, and samples orphaned by expired enrollment
// sessions. Each tick is independent; a failing pass is logged and retried on
// the next tick, never fatal to the service.
type ReaperService struct {
	challenges *ChallengeService
	attempts   port.AttemptRepository
	samples    port.SampleRepository
	logger     *zap.Logger
	now        func() time.Time

	interval         time.Duration
	attemptRetention time.Duration
	sampleRetention  time.Duration
}

// NewReaperService constructs a ReaperService.
func NewReaperService(challenges *ChallengeService, attempts port.AttemptRepository, samples port.SampleRepository, logger *zap.Logger) *ReaperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReaperService{
		challenges:       challenges,
		attempts:         attempts,
		samples:          samples,
		logger:           logger,
		now:              time.Now,
		interval:         defaultReapInterval,
		attemptRetention: defaultAttemptRetention,
		sampleRetention:  defaultSampleRetention,
	}
}

// WithInterval overrides the tick interval.
func (s *ReaperService) WithInterval(interval time.Duration) *ReaperService {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// WithRetention overrides the attempt and orphaned-sample retention windows.
func (s *ReaperService) WithRetention(attempts, samples time.Duration) *ReaperService {
	if attempts > 0 {
		s.attemptRetention = attempts
	}
	if samples > 0 {
		s.sampleRetention = samples
	}
	return s
}

// WithClock overrides the clock, used in tests.
func (s *ReaperService) WithClock(clock func() time.Time) *ReaperService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Run blocks until the context is cancelled, sweeping on every tick.
func (s *ReaperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reaper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass over all retention targets.
func (s *ReaperService) Sweep(ctx context.Context) {
	if s.challenges != nil {
		if _, err := s.challenges.Reap(ctx); err != nil {
			s.logger.Warn("challenge reap failed", zap.Error(err))
		}
	}

	now := s.now().UTC()

	if s.attempts != nil {
		cutoff := now.Add(-s.attemptRetention)
		if deleted, err := s.attempts.DeleteDecidedBefore(ctx, cutoff); err != nil {
			s.logger.Warn("attempt purge failed", zap.Error(err))
		} else if deleted > 0 {
			s.logger.Info("purged attempts", zap.Int("deleted", deleted))
		}
	}

	if s.samples != nil {
		cutoff := now.Add(-s.sampleRetention)
		if deleted, err := s.samples.DeleteOrphaned(ctx, cutoff); err != nil {
			s.logger.Warn("orphaned sample purge failed", zap.Error(err))
		} else if deleted > 0 {
			s.logger.Info("purged orphaned samples", zap.Int("deleted", deleted))
		}
	}
}
