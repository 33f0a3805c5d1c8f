package config

import (
	"errors"
	"fmt"
	"time"
)

// Duration wraps time.Duration to support TOML string unmarshaling (e.g. "3s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the full node configuration.
type Config struct {
	Moniker string `toml:"moniker"`
	ChainID string `toml:"chain_id"`

	Consensus ConsensusConfig `toml:"consensus"`
	Mempool   MempoolConfig   `toml:"mempool"`
	Storage   StorageConfig   `toml:"storage"`
	Admin     AdminConfig     `toml:"admin"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// ConsensusConfig holds round timing and the initial hybrid weighting.
type ConsensusConfig struct {
	TimeoutPropose   Duration `toml:"timeout_propose"`
	TimeoutPreVote   Duration `toml:"timeout_prevote"`
	TimeoutPreCommit Duration `toml:"timeout_precommit"`

	StakeWeight   float64 `toml:"stake_weight"`
	StorageWeight float64 `toml:"storage_weight"`

	HistorySize     int  `toml:"history_size"`
	InboundQueue    int  `toml:"inbound_queue"`
	EarlyQuorumExit bool `toml:"early_quorum_exit"`
}

// MempoolConfig holds mempool and block assembly limits.
type MempoolConfig struct {
	MaxSize       int `toml:"max_size"`
	MaxTxBytes    int `toml:"max_tx_bytes"`
	CacheSize     int `toml:"cache_size"`
	MaxBlockBytes int `toml:"max_block_bytes"`
}

// StorageConfig holds storage parameters.
type StorageConfig struct {
	DBPath  string `toml:"db_path"`
	Backend string `toml:"backend"`
}

// AdminConfig holds the operator HTTP server parameters.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// TelemetryConfig holds observability parameters.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

// Storage backends.
const (
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Moniker: "hybrid-node",
		ChainID: "hybrid-devnet",
		Consensus: ConsensusConfig{
			TimeoutPropose:   Duration{3 * time.Second},
			TimeoutPreVote:   Duration{1 * time.Second},
			TimeoutPreCommit: Duration{1 * time.Second},
			StakeWeight:      0.5,
			StorageWeight:    0.5,
			HistorySize:      100,
			InboundQueue:     256,
			EarlyQuorumExit:  false,
		},
		Mempool: MempoolConfig{
			MaxSize:       10000,
			MaxTxBytes:    64 * 1024,
			CacheSize:     10000,
			MaxBlockBytes: 1024 * 1024, // 1 MB
		},
		Storage: StorageConfig{
			DBPath:  "data/commits",
			Backend: BackendPebble,
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:26670",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Addr:    "0.0.0.0:26660",
		},
		Log: LogConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

// Validate checks config for invalid values.
func (c *Config) Validate() error {
	if c.Moniker == "" {
		return errors.New("config: moniker must not be empty")
	}
	if c.ChainID == "" {
		return errors.New("config: chain_id must not be empty")
	}

	// Consensus.
	if c.Consensus.TimeoutPropose.Duration <= 0 {
		return errors.New("config: consensus.timeout_propose must be > 0")
	}
	if c.Consensus.TimeoutPreVote.Duration <= 0 {
		return errors.New("config: consensus.timeout_prevote must be > 0")
	}
	if c.Consensus.TimeoutPreCommit.Duration <= 0 {
		return errors.New("config: consensus.timeout_precommit must be > 0")
	}
	if !unitInterval(c.Consensus.StakeWeight) {
		return fmt.Errorf("config: consensus.stake_weight must be in [0,1], got %v", c.Consensus.StakeWeight)
	}
	if !unitInterval(c.Consensus.StorageWeight) {
		return fmt.Errorf("config: consensus.storage_weight must be in [0,1], got %v", c.Consensus.StorageWeight)
	}
	if c.Consensus.HistorySize <= 0 {
		return errors.New("config: consensus.history_size must be > 0")
	}
	if c.Consensus.InboundQueue <= 0 {
		return errors.New("config: consensus.inbound_queue must be > 0")
	}

	// Mempool.
	if c.Mempool.MaxSize <= 0 {
		return errors.New("config: mempool.max_size must be > 0")
	}
	if c.Mempool.MaxTxBytes <= 0 {
		return errors.New("config: mempool.max_tx_bytes must be > 0")
	}
	if c.Mempool.MaxBlockBytes < c.Mempool.MaxTxBytes {
		return fmt.Errorf("config: mempool.max_block_bytes (%d) must be >= max_tx_bytes (%d)",
			c.Mempool.MaxBlockBytes, c.Mempool.MaxTxBytes)
	}

	// Storage.
	switch c.Storage.Backend {
	case BackendPebble:
		if c.Storage.DBPath == "" {
			return errors.New("config: storage.db_path must not be empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: storage.backend must be 'pebble' or 'memory', got %q", c.Storage.Backend)
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		return errors.New("config: admin.addr must not be empty")
	}
	if c.Telemetry.Enabled && c.Telemetry.Addr == "" {
		return errors.New("config: telemetry.addr must not be empty")
	}

	switch c.Log.Mode {
	case "development", "dev", "production", "prod":
	default:
		return fmt.Errorf("config: log.mode must be development or production, got %q", c.Log.Mode)
	}

	return nil
}

func unitInterval(f float64) bool {
	return f >= 0 && f <= 1
}
