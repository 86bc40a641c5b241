package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/pkg/logger"
)

const (
	// DefaultTTL bounds how stale a cached balance listing can get if an
	// invalidation is lost.
	DefaultTTL = 5 * time.Minute

	// KeyPrefix is the prefix for balance cache keys
	KeyPrefix = "balances:"
)

// BalanceCache is a Redis-backed cache for per-user balance listings
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewBalanceCache creates a new balance cache with the default TTL
func NewBalanceCache(client *redis.Client, log *logger.Logger) *BalanceCache {
	return NewBalanceCacheWithTTL(client, DefaultTTL, log)
}

// NewBalanceCacheWithTTL creates a new balance cache with a custom TTL
func NewBalanceCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "balance_cache"),
	}
}

func key(userID uuid.UUID) string {
	return KeyPrefix + userID.String()
}

// GetUserBalances retrieves a cached balance listing. A miss returns
// (nil, false, nil).
func (c *BalanceCache) GetUserBalances(ctx context.Context, userID uuid.UUID) ([]ledger.UserBalance, bool, error) {
	val, err := c.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "user_id", userID)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "user_id", userID, "error", err)
		return nil, false, fmt.Errorf("failed to get cached balances: %w", err)
	}

	var balances []ledger.UserBalance
	if err := json.Unmarshal([]byte(val), &balances); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached balances: %w", err)
	}

	c.logger.Debug("cache hit", "user_id", userID)
	return balances, true, nil
}

// SetUserBalances stores a balance listing with the configured TTL
func (c *BalanceCache) SetUserBalances(ctx context.Context, userID uuid.UUID, balances []ledger.UserBalance) error {
	data, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}

	if err := c.client.Set(ctx, key(userID), data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set cached balances: %w", err)
	}

	return nil
}

// Invalidate drops the cached listings for the given users
func (c *BalanceCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("cache error", "operation", "invalidate", "error", err)
		return fmt.Errorf("failed to invalidate cached balances: %w", err)
	}

	return nil
}
