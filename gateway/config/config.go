package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const minHMACSecretBytes = 32

// RateLimitConfig throttles every client independently on the listed path
// prefixes.
type RateLimitConfig struct {
	ID                string   `toml:"ID"`
	RequestsPerMinute float64  `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	Paths             []string `toml:"Paths"`
}

type AuthConfig struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecret       string `toml:"HMACSecret"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
	// AllowCallerHeader lets unauthenticated requests name the caller through
	// X-Farm-Caller. Only honoured while Enabled is false.
	AllowCallerHeader bool `toml:"AllowCallerHeader"`
}

// ClockSkew is the leeway applied to exp/nbf/iat claims.
func (a AuthConfig) ClockSkew() time.Duration {
	if a.ClockSkewSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

type Config struct {
	ListenAddress       string            `toml:"ListenAddress"`
	ReadTimeoutSeconds  int               `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int               `toml:"WriteTimeoutSeconds"`
	IdleTimeoutSeconds  int               `toml:"IdleTimeoutSeconds"`
	RequestTimeoutMs    int               `toml:"RequestTimeoutMs"`
	LogRequests         bool              `toml:"LogRequests"`
	Auth                AuthConfig        `toml:"auth"`
	RateLimits          []RateLimitConfig `toml:"rateLimits"`
}

// Default returns the devnet gateway settings: open caller header, no JWT.
func Default() Config {
	return Config{
		ListenAddress:       "127.0.0.1:8080",
		ReadTimeoutSeconds:  30,
		WriteTimeoutSeconds: 30,
		IdleTimeoutSeconds:  120,
		RequestTimeoutMs:    5000,
		LogRequests:         true,
		Auth: AuthConfig{
			Enabled:           false,
			ClockSkewSeconds:  120,
			AllowCallerHeader: true,
		},
		RateLimits: []RateLimitConfig{
			{ID: "farm-write", RequestsPerMinute: 120, Burst: 20, Paths: []string{"/v1/farm/stake", "/v1/farm/unstake", "/v1/farm/harvest", "/v1/farm/jackpot"}},
		},
	}
}

func (cfg Config) ReadTimeout() time.Duration {
	return time.Duration(cfg.ReadTimeoutSeconds) * time.Second
}

func (cfg Config) WriteTimeout() time.Duration {
	return time.Duration(cfg.WriteTimeoutSeconds) * time.Second
}

func (cfg Config) IdleTimeout() time.Duration {
	return time.Duration(cfg.IdleTimeoutSeconds) * time.Second
}

func (cfg Config) RequestTimeout() time.Duration {
	if cfg.RequestTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.ListenAddress)); err != nil {
		return fmt.Errorf("gateway.ListenAddress: %w", err)
	}
	if cfg.ReadTimeoutSeconds < 0 || cfg.WriteTimeoutSeconds < 0 || cfg.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("gateway: timeouts must not be negative")
	}
	if cfg.Auth.Enabled {
		if len(strings.TrimSpace(cfg.Auth.HMACSecret)) < minHMACSecretBytes {
			return fmt.Errorf("gateway.auth.HMACSecret must be at least %d bytes when auth is enabled", minHMACSecretBytes)
		}
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for i := range cfg.RateLimits {
		limit := &cfg.RateLimits[i]
		limit.ID = strings.TrimSpace(limit.ID)
		if limit.ID == "" {
			return fmt.Errorf("gateway.rateLimits[%d].ID cannot be empty", i)
		}
		if _, dup := seen[limit.ID]; dup {
			return fmt.Errorf("gateway.rateLimits[%d]: duplicate ID %q", i, limit.ID)
		}
		seen[limit.ID] = struct{}{}
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("gateway.rateLimits[%d].RequestsPerMinute must be positive", i)
		}
		if len(limit.Paths) == 0 {
			return fmt.Errorf("gateway.rateLimits[%d].Paths must list at least one entry", i)
		}
		for j, path := range limit.Paths {
			trimmed := strings.TrimSpace(path)
			if !strings.HasPrefix(trimmed, "/") {
				return fmt.Errorf("gateway.rateLimits[%d].Paths[%d] must start with '/'", i, j)
			}
			limit.Paths[j] = trimmed
		}
	}
	return nil
}
