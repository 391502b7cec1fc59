package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AVS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AVS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Validator ──
	setFloat64(&cfg.Validator.ToleranceFraction, "AVS_VALIDATOR_TOLERANCE_FRACTION")
	setInt(&cfg.Validator.InactivityThresholdDays, "AVS_VALIDATOR_INACTIVITY_THRESHOLD_DAYS")
	setStr(&cfg.Validator.PrivateKey, "AVS_VALIDATOR_PRIVATE_KEY")
	setStr(&cfg.Validator.EncryptedKeyPath, "AVS_VALIDATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Validator.KeyPassword, "AVS_VALIDATOR_KEY_PASSWORD")
	setStr(&cfg.Validator.Address, "AVS_VALIDATOR_ADDRESS")

	// ── Primary source ──
	setStr(&cfg.Primary.BaseURL, "AVS_PRIMARY_BASE_URL")
	setStr(&cfg.Primary.Symbol, "AVS_PRIMARY_SYMBOL")
	setDuration(&cfg.Primary.Timeout, "AVS_PRIMARY_TIMEOUT")

	// ── Chainlink ──
	setStr(&cfg.Chainlink.RPCURL, "AVS_CHAINLINK_RPC_URL")
	setStr(&cfg.Chainlink.FeedAddress, "AVS_CHAINLINK_FEED_ADDRESS")
	setDuration(&cfg.Chainlink.MaxAge, "AVS_CHAINLINK_MAX_AGE")

	// ── Registry ──
	setStr(&cfg.Registry.ContractAddress, "AVS_REGISTRY_CONTRACT_ADDRESS")
	setStringSlice(&cfg.Registry.Validators, "AVS_REGISTRY_VALIDATORS")
	setDuration(&cfg.Registry.CacheTTL, "AVS_REGISTRY_CACHE_TTL")

	// ── Hook ──
	setStr(&cfg.Hook.URL, "AVS_HOOK_URL")
	setStr(&cfg.Hook.Secret, "AVS_HOOK_SECRET")
	setDuration(&cfg.Hook.Timeout, "AVS_HOOK_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AVS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AVS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AVS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AVS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AVS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AVS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AVS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AVS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AVS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AVS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AVS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AVS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AVS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AVS_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "AVS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AVS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AVS_S3_REGION")
	setStr(&cfg.S3.Bucket, "AVS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AVS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AVS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AVS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AVS_S3_FORCE_PATH_STYLE")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "AVS_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.LockTTL, "AVS_SCANNER_LOCK_TTL")
	setInt(&cfg.Scanner.PageSize, "AVS_SCANNER_PAGE_SIZE")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "AVS_FEED_ENABLED")
	setStr(&cfg.Feed.StreamURL, "AVS_FEED_STREAM_URL")
	setDuration(&cfg.Feed.MaxAge, "AVS_FEED_MAX_AGE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "AVS_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "AVS_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "AVS_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AVS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AVS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AVS_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AVS_MODE")
	setStr(&cfg.LogLevel, "AVS_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
