package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/emilyjiji/simple-price-oracle-avs-example/internal/blob/s3"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/cache/redis"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/config"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/crypto"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/platform/binance"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/platform/chainlink"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/platform/hook"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/platform/registry"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/store/postgres"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/validator"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AttestationStore domain.AttestationStore
	PositionStore    domain.PositionStore
	AuditStore       domain.AuditStore

	// Coordination
	LockManager domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Price sources
	PrimarySource   domain.PriceSource
	SecondarySource domain.PriceSource

	// Validation pipeline
	Registry     domain.ValidatorRegistry
	Signer       *validator.Signer
	Verifier     *validator.Verifier
	Orchestrator *validator.Orchestrator
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "scan", "full":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require Redis. Check mode talks
// only to the two price sources, so it stays runnable without any
// infrastructure besides an RPC endpoint.
func needsRedis(mode string) bool {
	return needsPostgres(mode)
}

// needsS3 returns true for modes that archive attestations.
func needsS3(mode string) bool {
	switch mode {
	case "scan", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AttestationStore = postgres.NewAttestationStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis (locks and registry caching) ---
	var redisClient *redis.Client
	if needsRedis(cfg.Mode) {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = c.Close() })

		redisClient = c
		deps.LockManager = redis.NewLockManager(c)
	}

	// --- Ethereum RPC: price feed and registry contract share one client ---
	ethClient, err := ethclient.DialContext(ctx, cfg.Chainlink.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ethereum rpc: %w", err)
	}
	closers = append(closers, ethClient.Close)

	secondary, err := chainlink.NewFeedSource(
		ethClient,
		common.HexToAddress(cfg.Chainlink.FeedAddress),
		cfg.Chainlink.MaxAge.Duration,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chainlink feed: %w", err)
	}
	deps.SecondarySource = secondary

	binanceClient := binance.NewClient(cfg.Primary.BaseURL, cfg.Primary.Timeout.Duration)
	deps.PrimarySource = binance.NewTickerSource(binanceClient, cfg.Primary.Symbol)

	// --- Validator registry ---
	var reg domain.ValidatorRegistry
	if cfg.Registry.ContractAddress != "" {
		reg, err = registry.NewContractRegistry(ethClient, common.HexToAddress(cfg.Registry.ContractAddress))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: registry contract: %w", err)
		}
	} else {
		reg, err = registry.NewStaticRegistry(cfg.Registry.Validators)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: static registry: %w", err)
		}
	}
	if redisClient != nil {
		reg = redis.NewRegistryCache(redisClient, reg, cfg.Registry.CacheTTL.Duration)
	}
	deps.Registry = reg

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.AttestationStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.AttestationStore,
				deps.AuditStore,
				cfg.Archive.BatchSize,
				logger,
			)
		}
	}

	// --- Signing key and optional external validation hook ---
	key, err := crypto.LoadSigningKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Validator.PrivateKey,
		EncryptedKeyPath: cfg.Validator.EncryptedKeyPath,
		KeyPassword:      cfg.Validator.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signing key: %w", err)
	}

	var validationHook domain.ValidationHook
	if cfg.Hook.URL != "" {
		var auth *crypto.RequestAuth
		if cfg.Hook.Secret != "" {
			auth = &crypto.RequestAuth{Secret: cfg.Hook.Secret}
		}
		hookClient, err := hook.NewClient(cfg.Hook.URL, auth, cfg.Hook.Timeout.Duration)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: validation hook: %w", err)
		}
		validationHook = hookClient
	}

	// --- Validation pipeline ---
	// The signer requires the attestation store; without Postgres (check
	// mode) the orchestrator runs signerless and only the standalone price
	// check is usable.
	if deps.AttestationStore != nil {
		deps.Signer = validator.NewSigner(
			key,
			common.HexToAddress(cfg.Validator.Address),
			deps.AttestationStore,
			validationHook,
			logger,
		)
	}
	deps.Verifier = validator.NewVerifier(deps.Registry, logger)
	deps.Orchestrator = validator.NewOrchestrator(
		deps.PrimarySource,
		deps.SecondarySource,
		validator.NewEvaluator(cfg.InactivityThreshold()),
		deps.Signer,
		cfg.Validator.ToleranceFraction,
		logger,
	)

	return deps, cleanup, nil
}
