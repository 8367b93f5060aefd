package config

import "time"

// CacheConfig defines settings for read-path caching of device and log
// listings. When Enabled is false or no Redis client is available, services
// skip the cache entirely. Prefix namespaces all cache keys so that a
// wildcard purge (`devices:userId=<id>*`) only ever touches this
// application's entries.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "cache"),
	}
}
