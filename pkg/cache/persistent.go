package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key namespaces.
const (
	keyFourmemeSet    = "bsc:fourmeme_tokens"
	keyNonFourmemeSet = "bsc:non_fourmeme_tokens"
	keyCooldownPrefix = "bsc:cooldown:"
	keyNoDataPrefix   = "bsc:no_data_pair:"
	keyThresholds     = "bsc:monitor:config:thresholds"
	keyRetryPrefix    = "bsc:retry:"
)

const persistentTTL = 7 * 24 * time.Hour

// PersistentStore wraps the Redis client used for the data that must
// outlive the process: fourmeme classification (7d), cooldown keys
// (base+jitter), the negative-result pair cache mirror, the retry queue,
// and the monitor config snapshot.
type PersistentStore struct {
	rdb *redis.Client
}

// NewPersistentStore dials Redis eagerly so a misconfigured DSN fails fast
// at startup.
func NewPersistentStore(ctx context.Context, addr, password string, db int) (*PersistentStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return &PersistentStore{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (p *PersistentStore) Close() error { return p.rdb.Close() }

// ClassifyFourmeme returns the persisted tri-state classification for a
// token: checked whitelist first, then blacklist. A member whose companion
// TTL key has lapsed is treated as unknown and pruned from its set, so a
// classification made once doesn't stick forever.
func (p *PersistentStore) ClassifyFourmeme(ctx context.Context, token string) (yes bool, known bool, err error) {
	isMember, err := p.rdb.SIsMember(ctx, keyFourmemeSet, token).Result()
	if err != nil {
		return false, false, fmt.Errorf("cache: sismember fourmeme: %w", err)
	}
	if isMember {
		expired, err := p.classificationExpired(ctx, token)
		if err != nil {
			return false, false, err
		}
		if expired {
			if err := p.rdb.SRem(ctx, keyFourmemeSet, token).Err(); err != nil {
				return false, false, fmt.Errorf("cache: prune expired fourmeme member: %w", err)
			}
			return false, false, nil
		}
		return true, true, nil
	}
	isNonMember, err := p.rdb.SIsMember(ctx, keyNonFourmemeSet, token).Result()
	if err != nil {
		return false, false, fmt.Errorf("cache: sismember non-fourmeme: %w", err)
	}
	if isNonMember {
		expired, err := p.classificationExpired(ctx, token)
		if err != nil {
			return false, false, err
		}
		if expired {
			if err := p.rdb.SRem(ctx, keyNonFourmemeSet, token).Err(); err != nil {
				return false, false, fmt.Errorf("cache: prune expired non-fourmeme member: %w", err)
			}
			return false, false, nil
		}
		return false, true, nil
	}
	return false, false, nil
}

// classificationExpired reports whether token's 7-day TTL companion key has
// lapsed, meaning its set membership is stale.
func (p *PersistentStore) classificationExpired(ctx context.Context, token string) (bool, error) {
	n, err := p.rdb.Exists(ctx, classificationTTLKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: check classification ttl: %w", err)
	}
	return n == 0, nil
}

// SetFourmemeClassification records a boolean classification persistently.
// Entries are refreshed with a 7-day TTL on the *set member* via a
// companion per-token string key, since Redis sets don't carry per-member
// TTLs; the string key's expiry is treated as authoritative and the set
// membership is pruned by ClassifyFourmeme when it finds the member with
// its companion key gone.
func (p *PersistentStore) SetFourmemeClassification(ctx context.Context, token string, isFourmeme bool) error {
	setKey := keyNonFourmemeSet
	if isFourmeme {
		setKey = keyFourmemeSet
	}
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, setKey, token)
	pipe.Set(ctx, classificationTTLKey(token), "1", persistentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: persist fourmeme classification: %w", err)
	}
	return nil
}

func classificationTTLKey(token string) string {
	return "bsc:fourmeme_ttl:" + token
}

// ClaimCooldown performs the atomic set-if-absent: a
// single SET key val NX EX ttl round trip, never a read-then-write. It
// returns true iff this call created the key.
func (p *PersistentStore) ClaimCooldown(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	ok, err := p.rdb.SetNX(ctx, keyCooldownPrefix+token, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: claim cooldown: %w", err)
	}
	return ok, nil
}

// ReleaseCooldown unconditionally deletes the cooldown key. Deleting a
// missing key is not an error (idempotent release).
func (p *PersistentStore) ReleaseCooldown(ctx context.Context, token string) error {
	if err := p.rdb.Del(ctx, keyCooldownPrefix+token).Err(); err != nil {
		return fmt.Errorf("cache: release cooldown: %w", err)
	}
	return nil
}

// CooldownTTL reports the remaining TTL on a token's cooldown key.
func (p *PersistentStore) CooldownTTL(ctx context.Context, token string) (time.Duration, error) {
	ttl, err := p.rdb.TTL(ctx, keyCooldownPrefix+token).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: cooldown ttl: %w", err)
	}
	return ttl, nil
}

// SetNoDataPair records the negative-cache marker for a pair that returned
// no statistics data even after full fallback widening.
func (p *PersistentStore) SetNoDataPair(ctx context.Context, pair string, ttl time.Duration) error {
	if err := p.rdb.Set(ctx, keyNoDataPrefix+pair, "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache: set no_data_pair: %w", err)
	}
	return nil
}

// IsNoDataPair checks the negative-cache marker.
func (p *PersistentStore) IsNoDataPair(ctx context.Context, pair string) (bool, error) {
	n, err := p.rdb.Exists(ctx, keyNoDataPrefix+pair).Result()
	if err != nil {
		return false, fmt.Errorf("cache: check no_data_pair: %w", err)
	}
	return n > 0, nil
}

// LoadThresholds fetches the persisted monitor config JSON blob, or
// returns ok=false if none has been written yet (first boot).
func (p *PersistentStore) LoadThresholds(ctx context.Context) (string, bool, error) {
	v, err := p.rdb.Get(ctx, keyThresholds).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: load thresholds: %w", err)
	}
	return v, true, nil
}

// SaveThresholds persists the monitor config JSON blob with no TTL.
func (p *PersistentStore) SaveThresholds(ctx context.Context, json string) error {
	if err := p.rdb.Set(ctx, keyThresholds, json, 0).Err(); err != nil {
		return fmt.Errorf("cache: save thresholds: %w", err)
	}
	return nil
}

// EnqueueRetry writes a dispatch-retry record for a token, keyed with a 1h
// TTL.
func (p *PersistentStore) EnqueueRetry(ctx context.Context, token, payloadJSON string) error {
	if err := p.rdb.Set(ctx, keyRetryPrefix+token, payloadJSON, time.Hour).Err(); err != nil {
		return fmt.Errorf("cache: enqueue retry: %w", err)
	}
	return nil
}

// ReadRetry returns the pending retry payload for a token, if any.
func (p *PersistentStore) ReadRetry(ctx context.Context, token string) (string, bool, error) {
	v, err := p.rdb.Get(ctx, keyRetryPrefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: read retry: %w", err)
	}
	return v, true, nil
}

// ClearRetry removes a retry record after it either succeeds or moves to
// the dead-letter table.
func (p *PersistentStore) ClearRetry(ctx context.Context, token string) error {
	if err := p.rdb.Del(ctx, keyRetryPrefix+token).Err(); err != nil {
		return fmt.Errorf("cache: clear retry: %w", err)
	}
	return nil
}
