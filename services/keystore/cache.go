package keystore

import (
	"context"
	"crypto/ed25519"
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

const publicKeyTTL = 30 * time.Second

var (
	publicKeyLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystore_public_key_lookups_total",
		Help: "Public key lookups by kid, partitioned by cache result.",
	}, []string{"result"})

	signatures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystore_signatures_total",
		Help: "Signing operations, partitioned by outcome.",
	}, []string{"outcome"})
)

type cachedKey struct {
	pub     ed25519.PublicKey
	expires time.Time
}

// publicKeyCache keeps recently resolved public keys. Concurrent misses for
// the same kid share one database read. Deletes evict locally; other replicas
// converge within publicKeyTTL.
type publicKeyCache struct {
	mu    sync.RWMutex
	items map[string]cachedKey
	group singleflight.Group
	now   func() time.Time
}

func newPublicKeyCache(now func() time.Time) *publicKeyCache {
	return &publicKeyCache{
		items: make(map[string]cachedKey),
		now:   now,
	}
}

func (c *publicKeyCache) get(ctx context.Context, kid string, load func(context.Context) (ed25519.PublicKey, error)) (ed25519.PublicKey, error) {
	c.mu.RLock()
	item, ok := c.items[kid]
	c.mu.RUnlock()
	if ok && c.now().Before(item.expires) {
		publicKeyLookups.WithLabelValues("hit").Inc()
		return item.pub, nil
	}

	publicKeyLookups.WithLabelValues("miss").Inc()
	v, err, _ := c.group.Do(kid, func() (any, error) {
		pub, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[kid] = cachedKey{pub: pub, expires: c.now().Add(publicKeyTTL)}
		c.mu.Unlock()
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ed25519.PublicKey), nil
}

func (c *publicKeyCache) evict(kid string) {
	c.mu.Lock()
	delete(c.items, kid)
	c.mu.Unlock()
	c.group.Forget(kid)
}

const kidLockStripes = 64

// kidLocks serializes deletes against in-flight signs of the same kid. Kids
// hash onto a fixed set of stripes, so lookups of unknown kids allocate
// nothing; unrelated kids may share a stripe.
type kidLocks struct {
	stripes [kidLockStripes]sync.RWMutex
}

func (l *kidLocks) get(kid string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(kid))
	return &l.stripes[h.Sum32()%kidLockStripes]
}
