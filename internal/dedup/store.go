// Package dedup recognizes replayed inbound deliveries. A delivery is keyed
// by the upstream message id (or the caller's Idempotency-Key) and remembers
// the Signal it produced, so a replay can be answered without re-scoring.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/repo"
)

// DefaultTTL is how long a delivery key is remembered when none is configured.
const DefaultTTL = 24 * time.Hour

// ClaimTTL bounds how long a pending claim blocks replays of a delivery whose
// worker died before completing it.
const ClaimTTL = time.Minute

// Store remembers which Signal a delivery key produced.
//
// Claim atomically reserves a key before the delivery is scored. Exactly one
// caller gets claimed=true; the others get the stored Signal id, or "" while
// the claimant is still working. The claimant either Completes the key with
// the Signal it wrote or Releases it on failure. Lookup reports ok=false for
// unknown, expired and still pending keys.
type Store interface {
	Lookup(ctx context.Context, key string) (signalID string, ok bool, err error)
	Claim(ctx context.Context, key string, ttl time.Duration) (signalID string, claimed bool, err error)
	Complete(ctx context.Context, key, signalID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Key builds the storage key for an upstream message id.
func Key(messageID string) string {
	return fmt.Sprintf("dedup:msg:%s", strings.TrimSpace(messageID))
}

func ttlOr(ttl, def time.Duration) time.Duration {
	if ttl <= 0 {
		return def
	}
	return ttl
}

// Pending claims are stored as an empty value.
var (
	completeScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == '' then
  return redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == '' then
  return redis.call('DEL', KEYS[1])
end
return 0`)
)

// RedisStore keeps delivery keys in Redis with a per-key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Lookup implements Store.
func (r *RedisStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := r.client.Get(ctx, Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("dedup lookup failed")
		return "", false, fmt.Errorf("dedup lookup: %w", err)
	}
	return id, id != "", nil
}

// Claim implements Store with SETNX of an empty value.
func (r *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ttl = ttlOr(ttl, ClaimTTL)
	set, err := r.client.SetNX(ctx, Key(key), "", ttl).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Dur("ttl", ttl).Msg("dedup claim failed")
		return "", false, fmt.Errorf("dedup claim: %w", err)
	}
	if set {
		return "", true, nil
	}
	id, err := r.client.Get(ctx, Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired or released between the two calls; the caller tries again
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup claim: %w", err)
	}
	return id, false, nil
}

// Complete implements Store. A key already holding a Signal keeps it.
func (r *RedisStore) Complete(ctx context.Context, key, signalID string, ttl time.Duration) error {
	ttl = ttlOr(ttl, DefaultTTL)
	err := completeScript.Run(ctx, r.client, []string{Key(key)}, signalID, ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Error().Err(err).Str("key", key).Dur("ttl", ttl).Msg("dedup complete failed")
		return fmt.Errorf("dedup complete: %w", err)
	}
	return nil
}

// Release implements Store.
func (r *RedisStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, r.client, []string{Key(key)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// DBStore keeps delivery keys in the delivery_records table. It is used when
// no Redis address is configured.
type DBStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

var _ Store = (*DBStore)(nil)

// NewDBStore returns a store over db.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Lookup implements Store.
func (s *DBStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	rec, err := repo.GetDeliveryRecord(ctx, s.DB, Key(key), s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup: %w", err)
	}
	return rec.SignalID, rec.SignalID != "", nil
}

// Claim implements Store on the unique message_key index: the insert that
// lands first owns the delivery.
func (s *DBStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	_, err := repo.CreateDeliveryRecord(ctx, s.DB, Key(key), "", ttlOr(ttl, ClaimTTL))
	if err == nil {
		return "", true, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return "", false, fmt.Errorf("dedup claim: %w", err)
	}
	rec, err := repo.GetDeliveryRecord(ctx, s.DB, Key(key), s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup claim: %w", err)
	}
	return rec.SignalID, false, nil
}

// Complete implements Store.
func (s *DBStore) Complete(ctx context.Context, key, signalID string, ttl time.Duration) error {
	if err := repo.CompleteDeliveryRecord(ctx, s.DB, Key(key), signalID, ttlOr(ttl, DefaultTTL)); err != nil {
		return fmt.Errorf("dedup complete: %w", err)
	}
	return nil
}

// Release implements Store.
func (s *DBStore) Release(ctx context.Context, key string) error {
	if err := repo.ReleaseDeliveryRecord(ctx, s.DB, Key(key)); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// Purge drops expired records and reports how many were removed.
func (s *DBStore) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredDeliveries(ctx, s.DB, s.Now())
}
