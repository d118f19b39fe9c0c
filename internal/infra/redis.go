// README: Redis client initialization for session snapshots, last fixes and stream relay.
package infra

import "github.com/redis/go-redis/v9"

// NewRedis returns nil when addr is empty so callers can treat redis as optional.
func NewRedis(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}
