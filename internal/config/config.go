// Package config loads the server configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

// SepoliaChainID is the network the contracts are deployed on by default.
const SepoliaChainID = 11155111

// Config is the complete server configuration.
type Config struct {
	Port   int    `env:"PORT"    envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"./data/trustsplit.db"`

	RPCURL         string `env:"RPC_URL"         envDefault:"http://localhost:8545"`
	ChainID        int64  `env:"CHAIN_ID"        envDefault:"11155111"`
	FactoryAddress string `env:"FACTORY_ADDRESS"`

	KeystoreDir string `env:"KEYSTORE_DIR" envDefault:"./data/keystore"`
	Account     string `env:"ACCOUNT"`
	Passphrase  string `env:"KEYSTORE_PASSPHRASE"`

	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// SettleDelay is the grace period given to the node after a transaction
	// is mined, before state is re-read.
	SettleDelay    time.Duration `env:"SETTLE_DELAY"    envDefault:"2s"`
	SettleAttempts uint          `env:"SETTLE_ATTEMPTS" envDefault:"5"`

	// A failed read is retried ReadRetries times, the first retry after
	// ReadRetryInterval.
	ReadRetries       uint          `env:"READ_RETRIES"        envDefault:"2"`
	ReadRetryInterval time.Duration `env:"READ_RETRY_INTERVAL" envDefault:"250ms"`

	// LedgerLimit bounds how many expenses one ledger projection reads.
	LedgerLimit       uint64        `env:"LEDGER_LIMIT"        envDefault:"10000"`
	LedgerConcurrency int           `env:"LEDGER_CONCURRENCY"  envDefault:"8"`
	WatchInterval     time.Duration `env:"WATCH_INTERVAL"      envDefault:"15s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check on its own.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive: %d", c.ChainID)
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if _, err := c.Factory(); err != nil {
		return err
	}
	if c.Account != "" {
		if _, err := models.ParseIdentity(c.Account); err != nil {
			return fmt.Errorf("ACCOUNT: %w", err)
		}
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative")
	}
	if c.SettleAttempts == 0 {
		return fmt.Errorf("SETTLE_ATTEMPTS must be at least 1")
	}
	if c.ReadRetryInterval <= 0 {
		return fmt.Errorf("READ_RETRY_INTERVAL must be positive")
	}
	if c.LedgerLimit == 0 {
		return fmt.Errorf("LEDGER_LIMIT must be at least 1")
	}
	if c.LedgerConcurrency <= 0 {
		return fmt.Errorf("LEDGER_CONCURRENCY must be positive")
	}
	return nil
}

// Factory returns the registry contract address. A missing or zero address
// means the contracts have not been deployed yet.
func (c Config) Factory() (common.Address, error) {
	if strings.TrimSpace(c.FactoryAddress) == "" {
		return common.Address{}, apperrors.New(apperrors.CodeConnectivity, "factory contract is not deployed: FACTORY_ADDRESS is empty")
	}
	addr, err := models.ParseIdentity(c.FactoryAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("FACTORY_ADDRESS: %w", err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, apperrors.New(apperrors.CodeConnectivity, "factory contract is not deployed: FACTORY_ADDRESS is the zero address")
	}
	return addr, nil
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
