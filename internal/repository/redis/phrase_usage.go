package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/vocalid/voiceauth/internal/core/port"
)

const (
	defaultPhraseUsagePrefix   = "voiceauth:phrase-usage"
	defaultPhraseUsageCap      = 200
	defaultPhraseUsageRetention = 30 * 24 * time.Hour
)

// PhraseUsageStore remembers recently served phrases per identity in a sorted
// set scored by serve time, so exclusion windows survive restarts.
type PhraseUsageStore struct {
	client    *red.Client
	prefix    string
	capSize   int
	retention time.Duration
}

// NewPhraseUsageStore constructs a PhraseUsageStore.
func NewPhraseUsageStore(client *red.Client, keyPrefix string) *PhraseUsageStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPhraseUsagePrefix
	}
	return &PhraseUsageStore{
		client:    client,
		prefix:    prefix,
		capSize:   defaultPhraseUsageCap,
		retention: defaultPhraseUsageRetention,
	}
}

// WithCap overrides how many usage entries are retained per identity.
func (s *PhraseUsageStore) WithCap(capSize int) *PhraseUsageStore {
	if capSize > 0 {
		s.capSize = capSize
	}
	return s
}

// RecordUse appends the served phrase ids scored by the serve timestamp and
// trims the set to the retention cap.
func (s *PhraseUsageStore) RecordUse(ctx context.Context, identityID string, phraseIDs []string, at time.Time) error {
	if identityID == "" {
		return errors.New("identity id is required")
	}
	if len(phraseIDs) == 0 {
		return nil
	}

	members := make([]red.Z, 0, len(phraseIDs))
	for i, id := range phraseIDs {
		// Offset keeps ordering stable when phrases share a timestamp.
		members = append(members, red.Z{
			Score:  float64(at.UnixNano() + int64(i)),
			Member: id,
		})
	}

	key := s.key(identityID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.capSize-1))
	pipe.Expire(ctx, key, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record phrase use: %w", err)
	}
	return nil
}

// RecentPhraseIDs returns up to window most recently served phrase ids,
// newest first.
func (s *PhraseUsageStore) RecentPhraseIDs(ctx context.Context, identityID string, window int) ([]string, error) {
	if identityID == "" {
		return nil, errors.New("identity id is required")
	}
	if window <= 0 {
		return nil, nil
	}

	ids, err := s.client.ZRevRange(ctx, s.key(identityID), 0, int64(window-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent phrase ids: %w", err)
	}
	return ids, nil
}

func (s *PhraseUsageStore) key(identityID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, identityID)
}

var _ port.PhraseUsageStore = (*PhraseUsageStore)(nil)
