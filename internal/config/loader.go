package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (operational tuning that
// rarely changes per-deploy), merges it on top of the built-in defaults,
// applies environment variable overrides, and returns the final Config. A
// missing path is not an error — the zero value plus Defaults() plus env
// overrides is a valid configuration for container deploys that carry no
// TOML file at all. The returned Config has NOT been validated; the caller
// must invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the environment variables named in Config's field
// comments and overwrites the corresponding fields when set. This is how
// operators inject secrets (RELAYER_PRIVATE_KEY, DATABASE_URL) and per-deploy
// values without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CHAIN_ID")
	setStr(&cfg.Chain.RelayerPrivateKey, "RELAYER_PRIVATE_KEY")
	setStr(&cfg.Chain.RelayerKeyPath, "RELAYER_KEY_PATH")
	setStr(&cfg.Chain.RelayerKeyPassword, "RELAYER_KEY_PASSWORD")
	setStr(&cfg.Chain.FactoryAddress, "FACTORY_ADDRESS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "DATABASE_URL")
	setInt(&cfg.Database.PoolMaxConns, "DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "DATABASE_POOL_MIN_CONNS")

	// ── Redis ── (ambient infra, not named directly in the public env
	// var list but supported for operators who need to point at a
	// non-default cache instance)
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── Signatures ──
	setInt(&cfg.Signatures.MinThreshold, "MIN_SIGNATURES_THRESHOLD")
	setInt(&cfg.Signatures.MaxProposalAgeHours, "MAX_PROPOSAL_AGE_HOURS")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ALLOWED_ORIGINS")
	setBool(&cfg.Server.EnableDevDelete, "ENABLE_DEV_DELETE")

	// ── Rate limit ──
	setInt(&cfg.RateLimit.WindowMs, "RATE_LIMIT_WINDOW_MS")
	setInt(&cfg.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
