package config

// This file defines a Redis client constructor for the application.  Redis is
// used for distributed rate limiting and HTTP response caching.  If connection
// fails during startup, the function returns nil and callers should degrade
// gracefully: caching is disabled and rate limiting falls back to an
// in-process limiter.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is read from:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port take precedence when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS
type RedisConfig struct {
	Enabled  bool `default:"true"`
	Host     string
	Port     string
	Addr     string `default:"localhost:6379"`
	Password string
	DB       int  `default:"0"`
	TLS      bool `default:"false"`
}

// Address resolves the effective host:port.
func (r RedisConfig) Address() string {
	if r.Host != "" && r.Port != "" {
		return r.Host + ":" + r.Port
	}
	if r.Addr == "" {
		return "localhost:6379"
	}
	return r.Addr
}

// NewRedisClient instantiates a Redis client from cfg. The returned client
// is nil when Redis is disabled or cannot be reached.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	// Ping the server with a short timeout.  Return nil on failure.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
