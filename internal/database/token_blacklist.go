package database

import (
	"context"
	"time"
)

const tokenBlacklistPrefix = "clipdigest:token:revoked:"

// BlacklistToken marks a JWT as revoked until it would have expired
// anyway. Called on logout.
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil || ttl <= 0 {
		return nil
	}

	ctx := context.Background()
	return Redis.Set(ctx, tokenBlacklistPrefix+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT has been revoked. Fails open
// when Redis is unavailable so an outage does not lock everyone out.
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}

	ctx := context.Background()
	n, err := Redis.Exists(ctx, tokenBlacklistPrefix+token).Result()
	if err != nil {
		return false
	}
	return n > 0
}
