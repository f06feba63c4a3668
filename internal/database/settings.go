package database

import (
	"strconv"

	"github.com/clipdigest/backend/internal/models"
)

// GetSettingInt returns an integer system preference, served from the
// settings cache when possible. Missing or non-numeric values yield
// the default and are not cached.
func GetSettingInt(key string, defaultVal int) int {
	cacheKey := CacheKeySettings + key

	var cached int
	if err := CacheGet(cacheKey, &cached); err == nil {
		return cached
	}

	var pref models.SystemPreference
	if err := DB.Where("key = ?", key).First(&pref).Error; err != nil {
		return defaultVal
	}
	val, err := strconv.Atoi(pref.Value)
	if err != nil {
		return defaultVal
	}

	CacheSet(cacheKey, val, CacheTTLSettings)
	return val
}
