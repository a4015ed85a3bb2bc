// Package cache implements the three-tier cache layer: a small
// hot LRU (no TTL, hashicorp/golang-lru) for the hottest pair metadata, a
// sharded warm TTL map for everything else in-process, and — for data that
// must survive a restart or be shared across instances (fourmeme
// classification, cooldown and retry keys, the no_data_pair mirror, live
// thresholds) — a Redis-backed persistent tier. Concurrent misses for the same key are
// serialized with golang.org/x/sync/singleflight so every waiter observes
// the same freshly-resolved value.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// Kind names one cache namespace; each gets its own hot/warm tier and
// single-flight group so an eviction storm in one namespace can't starve
// another.
type Kind string

const (
	KindReceipt    Kind = "receipt"
	KindPairMeta   Kind = "pairmeta"
	KindWBNBPrice  Kind = "wbnbprice"
	KindNoDataPair Kind = "no_data_pair"
	KindFourmeme   Kind = "fourmeme"
)

// defaultTTL is the warm-tier TTL per kind.
var defaultTTL = map[Kind]time.Duration{
	KindReceipt:    5 * time.Minute,
	KindPairMeta:   time.Hour,
	KindWBNBPrice:  5 * time.Minute,
	KindNoDataPair: 10 * time.Minute,
}

// Namespace is one cache kind's hot+warm tiers plus its single-flight
// group. Entries are written atomically into both tiers on resolve and are
// never partially populated — a value is either fully valid or absent,
// caches never cache partially-populated entries.
type Namespace struct {
	kind  Kind
	ttl   time.Duration
	hot   *lru.Cache
	warm  *ttlMap
	group singleflight.Group

	hits   Counter
	misses Counter
}

// Counter is the minimal interface Namespace needs from the observability
// registry; kept tiny so this package doesn't import prometheus directly.
type Counter interface {
	Inc()
}

type noopCounter struct{}

func (noopCounter) Inc() {}

// NewNamespace builds one namespace with a bounded hot tier (hotSize
// entries, default ~1k) and the kind's configured TTL.
func NewNamespace(kind Kind, hotSize int) (*Namespace, error) {
	hot, err := lru.New(hotSize)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru for %s: %w", kind, err)
	}
	return &Namespace{
		kind:   kind,
		ttl:    defaultTTL[kind],
		hot:    hot,
		warm:   newTTLMap(),
		hits:   noopCounter{},
		misses: noopCounter{},
	}, nil
}

// SetMetrics wires real counters in place of the no-ops; called once at
// startup by cmd/swapwatch with counters taken from the observability
// registry.
func (n *Namespace) SetMetrics(hits, misses Counter) {
	n.hits = hits
	n.misses = misses
}

// Get tries hot then warm. A warm hit is promoted into the hot tier. A hot
// hit counts only while the key's warm entry is still live; once the warm
// TTL has lapsed the hot copy is dropped and the lookup is a miss.
func (n *Namespace) Get(key string) (any, bool) {
	if v, ok := n.hot.Get(key); ok {
		if _, live := n.warm.get(key); live {
			n.hits.Inc()
			return v, true
		}
		n.hot.Remove(key)
	}
	if v, ok := n.warm.get(key); ok {
		n.hot.Add(key, v)
		n.hits.Inc()
		return v, true
	}
	n.misses.Inc()
	return nil, false
}

// Set populates both tiers. Passing a zero ttl uses the namespace default.
func (n *Namespace) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = n.ttl
	}
	n.hot.Add(key, value)
	n.warm.set(key, value, ttl)
}

// Delete removes a key from both tiers (used when a resolve definitively
// fails, so a stale partial value can never linger).
func (n *Namespace) Delete(key string) {
	n.hot.Remove(key)
	n.warm.delete(key)
}

// Sweep drops expired warm entries; call on a ticker from the owning
// Manager.
func (n *Namespace) Sweep() { n.warm.sweep() }

// Size reports the warm tier's live entry count, for the cache_size{kind}
// gauge.
func (n *Namespace) Size() int { return n.warm.size() }

// GetOrLoad implements the single-flight cache-population pattern: on a
// miss, exactly one caller's loader runs; every concurrent caller for the
// same key (including the one that lost the race) observes the same
// result. A loader error is never cached — the next caller retries.
func (n *Namespace) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (any, error)) (any, error) {
	if v, ok := n.Get(key); ok {
		return v, nil
	}
	v, err, _ := n.group.Do(key, func() (any, error) {
		if v, ok := n.Get(key); ok {
			return v, nil
		}
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		n.Set(key, val, ttl)
		return val, nil
	})
	return v, err
}
