package database

import (
	"strconv"
	"time"
)

// CachedPlan holds the billing state the usage gate reads on every
// request. It is only safe to serve from cache because every plan
// synchronizer write invalidates the entry; a stale plan here would be
// a correctness bug, not a slow path.
type CachedPlan struct {
	UserID           uint       `json:"user_id"`
	Plan             string     `json:"plan"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

func planCacheKey(userID uint) string {
	return CacheKeyPlan + strconv.FormatUint(uint64(userID), 10)
}

// GetCachedPlan retrieves a user's plan from cache or returns nil
func GetCachedPlan(userID uint) *CachedPlan {
	var plan CachedPlan
	if err := CacheGet(planCacheKey(userID), &plan); err != nil {
		return nil // Cache miss
	}
	return &plan
}

// SetCachedPlan stores a user's plan in cache
func SetCachedPlan(plan *CachedPlan) {
	if plan == nil {
		return
	}
	CacheSet(planCacheKey(plan.UserID), plan, CacheTTLPlan)
}

// InvalidatePlanCache removes a user's plan from cache. Must be called
// on every plan write.
func InvalidatePlanCache(userID uint) {
	CacheDelete(planCacheKey(userID))
}
