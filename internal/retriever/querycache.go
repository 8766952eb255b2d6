package retriever

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryCache memoizes rendered query results in Redis. Keys embed the
// index generation, so every successful update invalidates naturally.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueryCache connects to Redis and verifies the connection.
func NewQueryCache(url string) (*QueryCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &QueryCache{client: client, ttl: time.Hour}, nil
}

// Key builds the cache key for a query against a given generation.
func Key(userID string, generation uint64, query string) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("uce:query:%s:%d:%x", userID, generation, h[:8])
}

// Get returns the cached value, or "" on miss.
func (c *QueryCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Set stores a value under the cache TTL.
func (c *QueryCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

// Close releases the connection.
func (c *QueryCache) Close() error {
	return c.client.Close()
}
