package config

import "time"

// RateLimitConfig configures the token-bucket limiter on mutating routes.
// Burst and RefillEvery are shorthands that override Capacity and the
// refill rate when set.
type RateLimitConfig struct {
	Enabled        bool          `default:"true"`
	Capacity       int           `default:"60"`
	RefillTokens   int           `split_words:"true" default:"1"`
	RefillInterval time.Duration `split_words:"true" default:"1s"`
	TTL            time.Duration `default:"10m"`
	KeyStrategy    string        `split_words:"true" default:"ip_user_route"`
	Prefix         string        `default:"rl"`
	Debug          bool          `default:"false"`
	Burst          int           `default:"-1"`
	RefillEvery    time.Duration `split_words:"true" default:"0"`
}

func (def RateLimitConfig) normalize() RateLimitConfig {
	if def.Burst > 0 {
		def.Capacity = def.Burst
	}
	if def.RefillEvery > 0 {
		def.RefillTokens = 1
		def.RefillInterval = def.RefillEvery
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	minTTL := 5 * def.RefillInterval
	if def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

// PerSecond is the steady refill rate, used by the in-process fallback.
func (def RateLimitConfig) PerSecond() float64 {
	return float64(def.RefillTokens) / def.RefillInterval.Seconds()
}
