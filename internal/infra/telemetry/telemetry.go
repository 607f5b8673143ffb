package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vocalid/voiceauth/internal/infra/config"
)

// Provider holds the domain-level collectors. HTTP request metrics live in the
// transport middleware; this covers what happens after routing.
type Provider struct {
	decisionCounter   *prometheus.CounterVec
	enrollmentCounter *prometheus.CounterVec
	lockoutCounter    prometheus.Counter
}

// Attach registers the domain collectors and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	decisions, err := registerCounterVec(prometheus.CounterOpts{
		Namespace: "voiceauth",
		Name:      "verification_decisions_total",
		Help:      "Verification decisions by outcome and reason",
	}, []string{"accepted", "reason"})
	if err != nil {
		return nil, fmt.Errorf("register decision counter: %w", err)
	}

	enrollments, err := registerCounterVec(prometheus.CounterOpts{
		Namespace: "voiceauth",
		Name:      "enrollments_completed_total",
		Help:      "Completed enrollments by kind",
	}, []string{"reenrollment"})
	if err != nil {
		return nil, fmt.Errorf("register enrollment counter: %w", err)
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voiceauth",
		Name:      "identity_lockouts_total",
		Help:      "Identities locked after consecutive failures",
	})
	if err := prometheus.DefaultRegisterer.Register(lockouts); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				lockouts = existing
			} else {
				return nil, fmt.Errorf("existing lockout collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register lockout counter: %w", err)
		}
	}

	return &Provider{
		decisionCounter:   decisions,
		enrollmentCounter: enrollments,
		lockoutCounter:    lockouts,
	}, nil
}

func registerCounterVec(opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.DefaultRegisterer.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		vec = existing
	}
	return vec, nil
}

// ObserveDecision records one verification decision.
func (p *Provider) ObserveDecision(accepted bool, reason string) {
	if p == nil || p.decisionCounter == nil {
		return
	}
	p.decisionCounter.WithLabelValues(fmt.Sprintf("%t", accepted), reason).Inc()
}

// ObserveEnrollment records one completed enrollment.
func (p *Provider) ObserveEnrollment(reenrollment bool) {
	if p == nil || p.enrollmentCounter == nil {
		return
	}
	p.enrollmentCounter.WithLabelValues(fmt.Sprintf("%t", reenrollment)).Inc()
}

// ObserveLockout records one identity lockout.
func (p *Provider) ObserveLockout() {
	if p == nil || p.lockoutCounter == nil {
		return
	}
	p.lockoutCounter.Inc()
}
