package port

import (
	"context"
	"time"
)

// PhraseUsageStore remembers which phrases an identity was recently served so
// the provider can exclude them and keep challenges unpredictable.
type PhraseUsageStore interface {
	RecordUse(ctx context.Context, identityID string, phraseIDs []string, at time.Time) error
	// RecentPhraseIDs returns up to window most recently used phrase ids,
	// newest first.
	RecentPhraseIDs(ctx context.Context, identityID string, window int) ([]string, error)
}
