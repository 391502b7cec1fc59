// Package config defines the top-level configuration for the validator
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AVS_* environment variables.
type Config struct {
	Validator ValidatorConfig `toml:"validator"`
	Primary   PrimaryConfig   `toml:"primary"`
	Chainlink ChainlinkConfig `toml:"chainlink"`
	Registry  RegistryConfig  `toml:"registry"`
	Hook      HookConfig      `toml:"hook"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Feed      FeedConfig      `toml:"feed"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ValidatorConfig holds the validation thresholds and the signing identity.
type ValidatorConfig struct {
	// ToleranceFraction is the maximum relative disagreement between the
	// two price sources, e.g. 0.05 for 5%.
	ToleranceFraction float64 `toml:"tolerance_fraction"`
	// InactivityThresholdDays is how long a position must sit inactive
	// before a restake qualifies.
	InactivityThresholdDays int `toml:"inactivity_threshold_days"`
	// PrivateKey is the raw hex signing key. Optional: without a key the
	// service produces unsigned provisional attestations.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// Address is the validator's declared address, attached to unsigned
	// attestations. When a signing key is set the derived address wins.
	Address string `toml:"address"`
}

// PrimaryConfig holds the REST price source (Binance spot) parameters.
type PrimaryConfig struct {
	BaseURL string   `toml:"base_url"`
	Symbol  string   `toml:"symbol"`
	Timeout duration `toml:"timeout"`
}

// ChainlinkConfig holds the secondary on-chain price feed parameters.
type ChainlinkConfig struct {
	RPCURL      string `toml:"rpc_url"`
	FeedAddress string `toml:"feed_address"`
	// MaxAge rejects feed answers older than this as stale.
	MaxAge duration `toml:"max_age"`
}

// RegistryConfig holds the validator allow-list source. Either a registry
// contract address or a static list must be configured.
type RegistryConfig struct {
	ContractAddress string   `toml:"contract_address"`
	Validators      []string `toml:"validators"`
	CacheTTL        duration `toml:"cache_ttl"`
}

// HookConfig holds the optional external validation endpoint.
type HookConfig struct {
	URL     string   `toml:"url"`
	Secret  string   `toml:"secret"`
	Timeout duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	// Endpoint overrides the S3 endpoint for MinIO/R2; empty means AWS.
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScannerConfig tunes the position sweep loop.
type ScannerConfig struct {
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
	PageSize int      `toml:"page_size"`
}

// FeedConfig holds the live WebSocket price feed parameters.
type FeedConfig struct {
	Enabled   bool     `toml:"enabled"`
	StreamURL string   `toml:"stream_url"`
	MaxAge    duration `toml:"max_age"`
}

// ArchiveConfig holds attestation archival parameters.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Validator: ValidatorConfig{
			ToleranceFraction:       0.05,
			InactivityThresholdDays: 7,
		},
		Primary: PrimaryConfig{
			BaseURL: "https://api.binance.com",
			Symbol:  "ETHUSDT",
			Timeout: duration{10 * time.Second},
		},
		Chainlink: ChainlinkConfig{
			// ETH/USD aggregator on mainnet.
			FeedAddress: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
			MaxAge:      duration{2 * time.Hour},
		},
		Registry: RegistryConfig{
			CacheTTL: duration{5 * time.Minute},
		},
		Hook: HookConfig{
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "avs-attestations",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Scanner: ScannerConfig{
			Interval: duration{30 * time.Second},
			LockTTL:  duration{time.Minute},
			PageSize: 200,
		},
		Feed: FeedConfig{
			Enabled:   true,
			StreamURL: "wss://stream.binance.com:9443",
			MaxAge:    duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			BatchSize:     500,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"scan":  true,
	"full":  true,
	"check": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, scan, full, check)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Validator
	if c.Validator.ToleranceFraction <= 0 || c.Validator.ToleranceFraction >= 1 {
		errs = append(errs, fmt.Sprintf("validator: tolerance_fraction must be in (0, 1), got %g", c.Validator.ToleranceFraction))
	}
	if c.Validator.InactivityThresholdDays < 1 {
		errs = append(errs, "validator: inactivity_threshold_days must be >= 1")
	}
	if c.Validator.EncryptedKeyPath != "" && c.Validator.KeyPassword == "" {
		errs = append(errs, "validator: key_password is required when encrypted_key_path is set")
	}
	if c.Validator.Address != "" && !common.IsHexAddress(c.Validator.Address) {
		errs = append(errs, fmt.Sprintf("validator: address %q is not a hex address", c.Validator.Address))
	}

	// Primary source
	if c.Primary.BaseURL == "" {
		errs = append(errs, "primary: base_url must not be empty")
	}
	if c.Primary.Symbol == "" {
		errs = append(errs, "primary: symbol must not be empty")
	}
	if c.Primary.Timeout.Duration <= 0 {
		errs = append(errs, "primary: timeout must be positive")
	}

	// Chainlink — the secondary source backs every mode, so the RPC
	// endpoint is always required.
	if c.Chainlink.RPCURL == "" {
		errs = append(errs, "chainlink: rpc_url must not be empty")
	}
	if !common.IsHexAddress(c.Chainlink.FeedAddress) {
		errs = append(errs, fmt.Sprintf("chainlink: feed_address %q is not a hex address", c.Chainlink.FeedAddress))
	}
	if c.Chainlink.MaxAge.Duration <= 0 {
		errs = append(errs, "chainlink: max_age must be positive")
	}

	// Registry — one of the two allow-list sources must be configured.
	if c.Registry.ContractAddress == "" && len(c.Registry.Validators) == 0 {
		errs = append(errs, "registry: either contract_address or validators must be set")
	}
	if c.Registry.ContractAddress != "" && !common.IsHexAddress(c.Registry.ContractAddress) {
		errs = append(errs, fmt.Sprintf("registry: contract_address %q is not a hex address", c.Registry.ContractAddress))
	}
	for _, v := range c.Registry.Validators {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("registry: validator %q is not a hex address", v))
		}
	}
	if c.Registry.CacheTTL.Duration <= 0 {
		errs = append(errs, "registry: cache_ttl must be positive")
	}

	// Hook
	if c.Hook.URL != "" && c.Hook.Timeout.Duration <= 0 {
		errs = append(errs, "hook: timeout must be positive when url is set")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — endpoint may stay empty for AWS proper, but the target bucket
	// must be named.
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Scanner.LockTTL.Duration <= 0 {
		errs = append(errs, "scanner: lock_ttl must be positive")
	}
	if c.Scanner.PageSize < 1 {
		errs = append(errs, "scanner: page_size must be >= 1")
	}

	// Feed
	if c.Feed.Enabled {
		if c.Feed.StreamURL == "" {
			errs = append(errs, "feed: stream_url must not be empty when enabled")
		}
		if c.Feed.MaxAge.Duration <= 0 {
			errs = append(errs, "feed: max_age must be positive when enabled")
		}
	}

	// Archive
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}
	if c.Archive.Interval.Duration <= 0 {
		errs = append(errs, "archive: interval must be positive")
	}
	if c.Archive.BatchSize < 1 {
		errs = append(errs, "archive: batch_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// InactivityThreshold returns the restake inactivity threshold as a duration.
func (c *Config) InactivityThreshold() time.Duration {
	return time.Duration(c.Validator.InactivityThresholdDays) * 24 * time.Hour
}
