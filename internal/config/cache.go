package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the request
// contribute to the cache key.  Prefix and MaxBodyBytes allow control over
// namespacing and the maximum size of responses to cache.
type CacheConfig struct {
	Enabled      bool          `default:"true"`
	Methods      []string      `default:"GET"`
	TTL          time.Duration `default:"30s"`
	KeyStrategy  string        `split_words:"true" default:"route_query"`
	Prefix       string        `default:"cache"`
	MaxBodyBytes int           `split_words:"true" default:"1048576"`
}

// Caches reports whether responses to method are cacheable.
func (c CacheConfig) Caches(method string) bool {
	for _, m := range c.Methods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}
