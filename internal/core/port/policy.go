package port

import "github.com/vocalid/voiceauth/internal/core/domain"

// PolicyProvider exposes the current threshold policy. Implementations swap
// the policy atomically on configuration reload so in-flight decisions read a
// consistent tuple.
type PolicyProvider interface {
	Current() domain.ThresholdPolicy
}
