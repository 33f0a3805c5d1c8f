package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HYBRID_"

// LoadFile reads and parses a TOML config file, applies environment variable
// overrides, and validates the result.
// Config precedence: Defaults → File → Environment variables.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse TOML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteFile encodes cfg as TOML at path.
func WriteFile(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode TOML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies HYBRID_* environment variable overrides.
// Env var format: HYBRID_<SECTION>_<FIELD> (e.g., HYBRID_STORAGE_BACKEND).
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	str("MONIKER", &cfg.Moniker)
	str("CHAIN_ID", &cfg.ChainID)

	// Consensus.
	dur("CONSENSUS_TIMEOUT_PROPOSE", &cfg.Consensus.TimeoutPropose)
	dur("CONSENSUS_TIMEOUT_PREVOTE", &cfg.Consensus.TimeoutPreVote)
	dur("CONSENSUS_TIMEOUT_PRECOMMIT", &cfg.Consensus.TimeoutPreCommit)
	float("CONSENSUS_STAKE_WEIGHT", &cfg.Consensus.StakeWeight)
	float("CONSENSUS_STORAGE_WEIGHT", &cfg.Consensus.StorageWeight)
	integer("CONSENSUS_HISTORY_SIZE", &cfg.Consensus.HistorySize)
	integer("CONSENSUS_INBOUND_QUEUE", &cfg.Consensus.InboundQueue)
	boolean("CONSENSUS_EARLY_QUORUM_EXIT", &cfg.Consensus.EarlyQuorumExit)

	// Mempool.
	integer("MEMPOOL_MAX_SIZE", &cfg.Mempool.MaxSize)
	integer("MEMPOOL_MAX_TX_BYTES", &cfg.Mempool.MaxTxBytes)
	integer("MEMPOOL_CACHE_SIZE", &cfg.Mempool.CacheSize)
	integer("MEMPOOL_MAX_BLOCK_BYTES", &cfg.Mempool.MaxBlockBytes)

	// Storage.
	str("STORAGE_DB_PATH", &cfg.Storage.DBPath)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)

	// Admin.
	boolean("ADMIN_ENABLED", &cfg.Admin.Enabled)
	str("ADMIN_ADDR", &cfg.Admin.Addr)

	// Telemetry.
	boolean("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	str("TELEMETRY_ADDR", &cfg.Telemetry.Addr)

	// Log.
	str("LOG_MODE", &cfg.Log.Mode)
	str("LOG_LEVEL", &cfg.Log.Level)
}

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func str(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func dur(key string, dst *Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration{d}
		}
	}
}

func float(key string, dst *float64) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func integer(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolean(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		*dst = v == "true" || v == "1"
	}
}
