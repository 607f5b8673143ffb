package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/vocalid/voiceauth/internal/core/port"
)

const (
	defaultLockoutPrefix = "voiceauth:lockout"
	defaultFailureWindow = time.Hour
)

// recordFailureScript increments the consecutive-failure counter and, when it
// reaches the ceiling, atomically swaps the counter for a lock key. Running
// as one script keeps two near-simultaneous failures at N-1 from both reading
// the pre-increment counter and neither tripping the lock.
var recordFailureScript = red.NewScript(`
local failures = redis.call("INCR", KEYS[1])
if failures >= tonumber(ARGV[1]) then
    redis.call("DEL", KEYS[1])
    redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
    return {failures, 1}
end
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {failures, 0}
`)

// LockoutStore tracks per-identity failure counters and lock keys in Redis.
type LockoutStore struct {
	client *red.Client
	prefix string
	window time.Duration
	now    func() time.Time
}

// NewLockoutStore constructs a LockoutStore with the provided key prefix.
func NewLockoutStore(client *red.Client, keyPrefix string) *LockoutStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLockoutPrefix
	}
	return &LockoutStore{
		client: client,
		prefix: prefix,
		window: defaultFailureWindow,
		now:    time.Now,
	}
}

// WithFailureWindow overrides how long an isolated failure stays counted.
func (s *LockoutStore) WithFailureWindow(window time.Duration) *LockoutStore {
	if window > 0 {
		s.window = window
	}
	return s
}

// WithClock overrides the internal clock, used in tests.
func (s *LockoutStore) WithClock(clock func() time.Time) *LockoutStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RecordFailure atomically increments the counter and trips the lock at the
// ceiling. The counter resets when the lock trips.
func (s *LockoutStore) RecordFailure(ctx context.Context, identityID string, maxFailures int, lockFor time.Duration) (port.FailureOutcome, error) {
	if identityID == "" {
		return port.FailureOutcome{}, errors.New("identity id is required")
	}
	if maxFailures <= 0 {
		return port.FailureOutcome{}, errors.New("max failures must be positive")
	}
	if lockFor <= 0 {
		return port.FailureOutcome{}, errors.New("lock duration must be positive")
	}

	lockedUntil := s.now().UTC().Add(lockFor)
	res, err := recordFailureScript.Run(ctx, s.client,
		[]string{s.failureKey(identityID), s.lockKey(identityID)},
		maxFailures,
		strconv.FormatInt(lockedUntil.UnixMilli(), 10),
		lockFor.Milliseconds(),
		s.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return port.FailureOutcome{}, fmt.Errorf("redis record failure: %w", err)
	}
	if len(res) != 2 {
		return port.FailureOutcome{}, fmt.Errorf("redis record failure: unexpected reply %v", res)
	}

	outcome := port.FailureOutcome{Failures: int(res[0])}
	if res[1] == 1 {
		outcome.Locked = true
		outcome.LockedUntil = lockedUntil
	}
	return outcome, nil
}

// ResetFailures clears the consecutive-failure counter.
func (s *LockoutStore) ResetFailures(ctx context.Context, identityID string) error {
	if identityID == "" {
		return errors.New("identity id is required")
	}
	if err := s.client.Del(ctx, s.failureKey(identityID)).Err(); err != nil {
		return fmt.Errorf("redis reset failures: %w", err)
	}
	return nil
}

// IsLocked reports whether the lock key is present and until when. The key's
// TTL enforces unlock; the stored timestamp only serves reporting.
func (s *LockoutStore) IsLocked(ctx context.Context, identityID string) (bool, time.Time, error) {
	if identityID == "" {
		return false, time.Time{}, errors.New("identity id is required")
	}

	raw, err := s.client.Get(ctx, s.lockKey(identityID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("redis get lock: %w", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("parse lock timestamp: %w", err)
	}
	return true, time.UnixMilli(ms).UTC(), nil
}

func (s *LockoutStore) failureKey(identityID string) string {
	return fmt.Sprintf("%s:failures:%s", s.prefix, identityID)
}

func (s *LockoutStore) lockKey(identityID string) string {
	return fmt.Sprintf("%s:lock:%s", s.prefix, identityID)
}

var _ port.LockoutStore = (*LockoutStore)(nil)
