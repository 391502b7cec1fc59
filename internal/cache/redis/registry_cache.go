package redis

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// RegistryCache decorates a domain.ValidatorRegistry with a Redis-backed
// TTL cache. Registry membership changes rarely, so verification does not
// need an on-chain call per attestation.
//
// A Redis outage degrades to the inner registry rather than failing the
// lookup.
type RegistryCache struct {
	inner domain.ValidatorRegistry
	rdb   *redis.Client
	ttl   time.Duration
}

var _ domain.ValidatorRegistry = (*RegistryCache)(nil)

// NewRegistryCache wraps inner with a cache using the given TTL.
func NewRegistryCache(c *Client, inner domain.ValidatorRegistry, ttl time.Duration) *RegistryCache {
	return &RegistryCache{
		inner: inner,
		rdb:   c.Underlying(),
		ttl:   ttl,
	}
}

func registryKey(addr common.Address) string {
	return "validator:approved:" + strings.ToLower(addr.Hex())
}

// IsApprovedValidator implements domain.ValidatorRegistry. Cache entries
// hold "1" or "0"; anything else counts as a miss.
func (rc *RegistryCache) IsApprovedValidator(ctx context.Context, addr common.Address) (bool, error) {
	key := registryKey(addr)

	val, err := rc.rdb.Get(ctx, key).Result()
	if err == nil {
		switch val {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}

	approved, err := rc.inner.IsApprovedValidator(ctx, addr)
	if err != nil {
		return false, err
	}

	cached := "0"
	if approved {
		cached = "1"
	}
	_ = rc.rdb.Set(ctx, key, cached, rc.ttl).Err()

	return approved, nil
}
