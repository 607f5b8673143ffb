package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

const (
	defaultEnrollmentSessionPrefix  = "voiceauth:enroll"
	defaultMultiPhraseSessionPrefix = "voiceauth:multiphrase"
)

// EnrollmentSessionStore keeps in-flight enrollment sessions as JSON values
// with a TTL. Expiry is delegated to Redis; a missing key reads as not found.
type EnrollmentSessionStore struct {
	client *red.Client
	prefix string
}

// NewEnrollmentSessionStore constructs an EnrollmentSessionStore.
func NewEnrollmentSessionStore(client *red.Client, keyPrefix string) *EnrollmentSessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultEnrollmentSessionPrefix
	}
	return &EnrollmentSessionStore{client: client, prefix: prefix}
}

func (s *EnrollmentSessionStore) Save(ctx context.Context, session domain.EnrollmentSession, ttl time.Duration) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal enrollment session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis save enrollment session: %w", err)
	}
	return nil
}

func (s *EnrollmentSessionStore) Get(ctx context.Context, id string) (*domain.EnrollmentSession, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get enrollment session: %w", err)
	}

	var session domain.EnrollmentSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal enrollment session: %w", err)
	}
	return &session, nil
}

func (s *EnrollmentSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete enrollment session: %w", err)
	}
	return nil
}

func (s *EnrollmentSessionStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

// MultiPhraseSessionStore keeps in-flight multi-phrase verification sessions
// as JSON values with a TTL.
type MultiPhraseSessionStore struct {
	client *red.Client
	prefix string
}

// NewMultiPhraseSessionStore constructs a MultiPhraseSessionStore.
func NewMultiPhraseSessionStore(client *red.Client, keyPrefix string) *MultiPhraseSessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultMultiPhraseSessionPrefix
	}
	return &MultiPhraseSessionStore{client: client, prefix: prefix}
}

func (s *MultiPhraseSessionStore) Save(ctx context.Context, session domain.MultiPhraseSession, ttl time.Duration) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal multi-phrase session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis save multi-phrase session: %w", err)
	}
	return nil
}

func (s *MultiPhraseSessionStore) Get(ctx context.Context, id string) (*domain.MultiPhraseSession, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get multi-phrase session: %w", err)
	}

	var session domain.MultiPhraseSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal multi-phrase session: %w", err)
	}
	return &session, nil
}

// Update is the compare-and-set counterpart of Save: the write lands only
// when the stored version still equals session.Version, and the stored copy
// carries Version+1. WATCH turns an interleaved writer into ErrConflict
// instead of a lost update.
func (s *MultiPhraseSessionStore) Update(ctx context.Context, session domain.MultiPhraseSession, ttl time.Duration) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := s.key(session.ID)
	err := s.client.Watch(ctx, func(tx *red.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, red.Nil) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("redis get multi-phrase session: %w", err)
		}

		var stored domain.MultiPhraseSession
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("unmarshal multi-phrase session: %w", err)
		}
		if stored.Version != session.Version {
			return repository.ErrConflict
		}

		next := session
		next.Version++
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal multi-phrase session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, red.TxFailedErr) {
		return repository.ErrConflict
	}
	return err
}

func (s *MultiPhraseSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete multi-phrase session: %w", err)
	}
	return nil
}

func (s *MultiPhraseSessionStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

var (
	_ port.EnrollmentSessionStore  = (*EnrollmentSessionStore)(nil)
	_ port.MultiPhraseSessionStore = (*MultiPhraseSessionStore)(nil)
)
