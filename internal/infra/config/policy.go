package config

import (
	"fmt"
	"sync/atomic"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
)

// PolicyStore holds the active threshold policy behind an atomic pointer.
// Readers on the verification hot path never block; Swap installs a validated
// replacement wholesale so a reload can't expose a half-updated tuple.
type PolicyStore struct {
	current atomic.Pointer[domain.ThresholdPolicy]
}

// NewPolicyStore validates and installs the initial policy.
func NewPolicyStore(policy domain.ThresholdPolicy) (*PolicyStore, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("initial policy: %w", err)
	}
	store := &PolicyStore{}
	store.current.Store(&policy)
	return store, nil
}

// Current returns the active policy by value.
func (s *PolicyStore) Current() domain.ThresholdPolicy {
	return *s.current.Load()
}

// Swap replaces the active policy. Invalid replacements are rejected and the
// previous policy stays in effect.
func (s *PolicyStore) Swap(policy domain.ThresholdPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("replacement policy: %w", err)
	}
	s.current.Store(&policy)
	return nil
}

// Reload rebuilds the policy from verification settings and installs it.
// An unknown strategy or invalid tuple leaves the active policy untouched.
func (s *PolicyStore) Reload(settings VerificationSettings) error {
	policy, err := BuildPolicy(settings)
	if err != nil {
		return err
	}
	return s.Swap(policy)
}

// BuildPolicy assembles a ThresholdPolicy from the verification settings,
// resolving the active named strategy against the configured tuples.
func BuildPolicy(settings VerificationSettings) (domain.ThresholdPolicy, error) {
	name := domain.StrategyName(settings.Strategy)

	tuple, ok := settings.Strategies[settings.Strategy]
	if !ok {
		return domain.ThresholdPolicy{}, fmt.Errorf("unknown threshold strategy %q", settings.Strategy)
	}

	policy := domain.ThresholdPolicy{
		Strategy: name,
		Thresholds: domain.Thresholds{
			Speaker: tuple.Speaker,
			Spoof:   tuple.Spoof,
			Text:    tuple.Text,
		},
		Multi: domain.MultiPhrasePolicy{
			PhraseCount:   settings.Multi.PhraseCount,
			Threshold:     settings.Multi.Threshold,
			SpoofCutoff:   settings.Multi.SpoofCutoff,
			PhrasePenalty: settings.Multi.PhrasePenalty,
		},
	}
	if err := policy.Validate(); err != nil {
		return domain.ThresholdPolicy{}, err
	}
	return policy, nil
}

var _ port.PolicyProvider = (*PolicyStore)(nil)
