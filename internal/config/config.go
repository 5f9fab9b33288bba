// Package config defines the top-level configuration for the relayer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file for operational tuning, then overridden by the environment
// variables named in each field's comment — the mechanism operators actually
// use to inject per-deploy values and secrets.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Signatures SignatureConfig  `toml:"signatures"`
	Server     ServerConfig     `toml:"server"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds the RPC connection and relayer wallet credentials.
//
// The signing key can be supplied two ways: RelayerPrivateKey (plaintext
// hex, dev/test only) or the RelayerKeyPath+RelayerKeyPassword pair, which
// points at a PBKDF2/AES-256-GCM encrypted key file produced by
// internal/crypto.EncryptKey — the production path, since the relayer holds
// a hot key used to submit FinalizeMarket transactions.
type ChainConfig struct {
	RPCURL              string `toml:"rpc_url"`               // RPC_URL
	ChainID             int64  `toml:"chain_id"`              // CHAIN_ID
	RelayerPrivateKey   string `toml:"relayer_private_key"`   // RELAYER_PRIVATE_KEY (dev/test only)
	RelayerKeyPath      string `toml:"relayer_key_path"`      // RELAYER_KEY_PATH
	RelayerKeyPassword  string `toml:"relayer_key_password"`  // RELAYER_KEY_PASSWORD
	FactoryAddress      string `toml:"factory_address"`       // FACTORY_ADDRESS (optional)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN          string `toml:"dsn"` // DATABASE_URL
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters, backing the rate limiter and
// scheduler lock manager.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// SignatureConfig holds the ingestion and finalization thresholds.
type SignatureConfig struct {
	MinThreshold        int `toml:"min_threshold"`          // MIN_SIGNATURES_THRESHOLD, default 3
	MaxProposalAgeHours int `toml:"max_proposal_age_hours"` // MAX_PROPOSAL_AGE_HOURS, default 24
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port             int      `toml:"port"`      // PORT
	CORSOrigins      []string `toml:"cors_origins"` // ALLOWED_ORIGINS
	EnableDevDelete  bool     `toml:"enable_dev_delete"`
}

// RateLimitConfig holds the default-tier request budget; the write tier
// (POST/DELETE routes) uses a fraction of it — see DESIGN.md.
type RateLimitConfig struct {
	WindowMs    int `toml:"window_ms"`    // RATE_LIMIT_WINDOW_MS, default 60000
	MaxRequests int `toml:"max_requests"` // RATE_LIMIT_MAX_REQUESTS, default 100
}

// Window returns the default tier's rate limit window as a time.Duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// WriteMaxRequests returns the tighter budget applied to write-path routes:
// a fifth of the default tier, floored at 10.
func (r RateLimitConfig) WriteMaxRequests() int {
	n := r.MaxRequests / 5
	if n < 10 {
		n = 10
	}
	return n
}

// MaxProposalAge returns the stale-proposal safety-net age as a
// time.Duration.
func (s SignatureConfig) MaxProposalAge() time.Duration {
	return time.Duration(s.MaxProposalAgeHours) * time.Hour
}

// Defaults returns a Config populated with the defaults named in spec §6.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID: 8453,
		},
		Database: DatabaseConfig{
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Signatures: SignatureConfig{
			MinThreshold:        3,
			MaxProposalAgeHours: 24,
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			EnableDevDelete: false,
		},
		RateLimit: RateLimitConfig{
			WindowMs:    60000,
			MaxRequests: 100,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.RelayerPrivateKey == "" && c.Chain.RelayerKeyPath == "" {
		errs = append(errs, "chain: one of relayer_private_key or relayer_key_path must be set")
	}
	if c.Chain.RelayerKeyPath != "" && c.Chain.RelayerKeyPassword == "" {
		errs = append(errs, "chain: relayer_key_password must be set when relayer_key_path is used")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, "database: dsn must not be empty")
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Signatures.MinThreshold < 1 {
		errs = append(errs, "signatures: min_threshold must be >= 1")
	}
	if c.Signatures.MaxProposalAgeHours < 1 {
		errs = append(errs, "signatures: max_proposal_age_hours must be >= 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.RateLimit.WindowMs <= 0 {
		errs = append(errs, "rate_limit: window_ms must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, "rate_limit: max_requests must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
