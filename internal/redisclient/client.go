package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/revoke_tokens.lua
var revokeTokensScript string

// revocationRetention outlives the longest token lifetime the identity provider issues
const revocationRetention = 7 * 24 * time.Hour

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	revokeScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		revokeScript:  redis.NewScript(revokeTokensScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func checkoutKey(accountID, key string) string {
	return fmt.Sprintf("idempotency:checkout:%s:%s", accountID, key)
}

// GetCheckoutResult returns the order created by an earlier checkout with the same key
func (c *Client) GetCheckoutResult(ctx context.Context, accountID, key string) (string, bool, error) {
	orderID, err := c.rdb.Get(ctx, checkoutKey(accountID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderID, true, nil
}

// SaveCheckoutResult remembers the order created for an idempotency key
func (c *Client) SaveCheckoutResult(ctx context.Context, accountID, key, orderID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, checkoutKey(accountID, key), orderID, ttl).Err()
}

// AcquireLock acquires a distributed lock and returns the token needed to release it
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func revocationKey(accountID string) string {
	return fmt.Sprintf("revoked:%s", accountID)
}

// RevokeTokensBefore voids every token of accountID issued at or before at. A later
// revocation instant is never replaced by an earlier one.
func (c *Client) RevokeTokensBefore(ctx context.Context, accountID string, at time.Time) error {
	_, err := c.revokeScript.Run(ctx, c.rdb, []string{revocationKey(accountID)},
		at.UnixMilli(), revocationRetention.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("revoke tokens script failed: %w", err)
	}
	return nil
}

// RevokedBefore returns the revocation instant of accountID, if any
func (c *Client) RevokedBefore(ctx context.Context, accountID string) (time.Time, bool, error) {
	raw, err := c.rdb.Get(ctx, revocationKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed revocation marker for %s: %w", accountID, err)
	}
	return time.UnixMilli(ms), true, nil
}
