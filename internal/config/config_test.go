package config_test

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/crypto"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should be valid: %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Moniker != "hybrid-node" {
		t.Errorf("expected moniker 'hybrid-node', got %q", cfg.Moniker)
	}
	if cfg.Consensus.TimeoutPropose.Duration.String() != "3s" {
		t.Errorf("expected timeout_propose 3s, got %v", cfg.Consensus.TimeoutPropose)
	}
	if cfg.Consensus.StakeWeight != 0.5 || cfg.Consensus.StorageWeight != 0.5 {
		t.Errorf("expected balanced weights, got %v/%v", cfg.Consensus.StakeWeight, cfg.Consensus.StorageWeight)
	}
	if cfg.Storage.Backend != config.BackendPebble {
		t.Errorf("expected backend 'pebble', got %q", cfg.Storage.Backend)
	}
	if cfg.Consensus.HistorySize != 100 {
		t.Errorf("expected history_size 100, got %d", cfg.Consensus.HistorySize)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*config.Config){
		"empty moniker":     func(c *config.Config) { c.Moniker = "" },
		"invalid backend":   func(c *config.Config) { c.Storage.Backend = "sqlite" },
		"zero propose":      func(c *config.Config) { c.Consensus.TimeoutPropose = config.Duration{} },
		"negative prevote":  func(c *config.Config) { c.Consensus.TimeoutPreVote = config.Duration{Duration: -time.Second} },
		"zero precommit":    func(c *config.Config) { c.Consensus.TimeoutPreCommit = config.Duration{} },
		"stake weight > 1":  func(c *config.Config) { c.Consensus.StakeWeight = 1.5 },
		"storage weight <0": func(c *config.Config) { c.Consensus.StorageWeight = -0.1 },
		"zero history":      func(c *config.Config) { c.Consensus.HistorySize = 0 },
		"block < tx":        func(c *config.Config) { c.Mempool.MaxBlockBytes = c.Mempool.MaxTxBytes - 1 },
		"unknown log mode":  func(c *config.Config) { c.Log.Mode = "verbose" },
		"admin without addr": func(c *config.Config) {
			c.Admin.Enabled = true
			c.Admin.Addr = ""
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMemoryBackendNeedsNoPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.DBPath = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend should not need db_path: %v", err)
	}
}

func TestLoadFileFromTOML(t *testing.T) {
	tomlContent := `
moniker = "my-validator"
chain_id = "hybrid-main"

[consensus]
timeout_propose = "5s"
timeout_prevote = "2s"
timeout_precommit = "2s"
stake_weight = 0.3
storage_weight = 0.7
history_size = 50
inbound_queue = 64
early_quorum_exit = true

[mempool]
max_size = 5000
max_tx_bytes = 4096
cache_size = 5000
max_block_bytes = 65536

[storage]
db_path = "data/mystore"
backend = "pebble"

[admin]
enabled = true
addr = "127.0.0.1:9000"

[telemetry]
enabled = true
addr = "0.0.0.0:9100"

[log]
mode = "development"
level = "debug"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(tomlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Moniker != "my-validator" {
		t.Errorf("expected moniker 'my-validator', got %q", cfg.Moniker)
	}
	if cfg.ChainID != "hybrid-main" {
		t.Errorf("expected chain_id 'hybrid-main', got %q", cfg.ChainID)
	}
	if cfg.Consensus.TimeoutPropose.Duration != 5*time.Second {
		t.Errorf("expected timeout_propose 5s, got %v", cfg.Consensus.TimeoutPropose)
	}
	if cfg.Consensus.StorageWeight != 0.7 {
		t.Errorf("expected storage_weight 0.7, got %v", cfg.Consensus.StorageWeight)
	}
	if !cfg.Consensus.EarlyQuorumExit {
		t.Error("expected early_quorum_exit")
	}
	if cfg.Mempool.MaxBlockBytes != 65536 {
		t.Errorf("expected max_block_bytes 65536, got %d", cfg.Mempool.MaxBlockBytes)
	}
	if cfg.Storage.DBPath != "data/mystore" {
		t.Errorf("expected db_path 'data/mystore', got %q", cfg.Storage.DBPath)
	}
	if cfg.Admin.Addr != "127.0.0.1:9000" {
		t.Errorf("expected admin addr, got %q", cfg.Admin.Addr)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("expected telemetry enabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestLoadFileKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`moniker = "partial"`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Consensus.InboundQueue != 256 {
		t.Errorf("expected default inbound_queue, got %d", cfg.Consensus.InboundQueue)
	}
}

func TestLoadFileEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteFile(path, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HYBRID_MONIKER", "env-override")
	t.Setenv("HYBRID_CONSENSUS_TIMEOUT_PREVOTE", "250ms")
	t.Setenv("HYBRID_CONSENSUS_STAKE_WEIGHT", "0.8")
	t.Setenv("HYBRID_CONSENSUS_INBOUND_QUEUE", "not-a-number")
	t.Setenv("HYBRID_STORAGE_BACKEND", "memory")
	t.Setenv("HYBRID_TELEMETRY_ENABLED", "true")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Moniker != "env-override" {
		t.Errorf("env override failed for moniker: got %q", cfg.Moniker)
	}
	if cfg.Consensus.TimeoutPreVote.Duration != 250*time.Millisecond {
		t.Errorf("env override failed for timeout_prevote: got %v", cfg.Consensus.TimeoutPreVote)
	}
	if cfg.Consensus.StakeWeight != 0.8 {
		t.Errorf("env override failed for stake_weight: got %v", cfg.Consensus.StakeWeight)
	}
	if cfg.Consensus.InboundQueue != 256 {
		t.Errorf("unparseable override should be ignored, got %d", cfg.Consensus.InboundQueue)
	}
	if cfg.Storage.Backend != config.BackendMemory {
		t.Errorf("env override failed for backend: got %q", cfg.Storage.Backend)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("env override failed for telemetry.enabled")
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	// Missing file.
	_, err := config.LoadFile("/nonexistent/config.toml")
	if err == nil {
		t.Fatal("should reject missing file")
	}

	// Invalid TOML.
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("{{invalid toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = config.LoadFile(path)
	if err == nil {
		t.Fatal("should reject invalid TOML")
	}

	// Valid TOML, invalid values.
	if err := os.WriteFile(path, []byte("[consensus]\nstake_weight = 2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadFile(path); err == nil {
		t.Fatal("should reject out-of-range weight")
	}
}

// --- Genesis ---

func writeGenesis(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func genesisValidatorJSON(t *testing.T, stake, storage uint64) string {
	t.Helper()
	pub, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.AddressFromPubKey(pub)
	return `{
      "address": "` + hex.EncodeToString(addr[:]) + `",
      "pub_key": "` + hex.EncodeToString(pub) + `",
      "stake": ` + strconv.FormatUint(stake, 10) + `,
      "storage_bytes": ` + strconv.FormatUint(storage, 10) + `,
      "reputation": 500,
      "name": "v"
    }`
}

func TestLoadGenesis(t *testing.T) {
	path := writeGenesis(t, `{
  "chain_id": "hybrid-test",
  "genesis_time": "2024-01-01T00:00:00Z",
  "validators": [`+genesisValidatorJSON(t, 100, 0)+`, `+genesisValidatorJSON(t, 200, 1073741824)+`],
  "consensus_params": {"max_validators": 100}
}`)

	gen, err := config.LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}

	if gen.ChainID != "hybrid-test" {
		t.Errorf("expected chain_id 'hybrid-test', got %q", gen.ChainID)
	}
	if len(gen.Validators) != 2 {
		t.Fatalf("expected 2 validators, got %d", len(gen.Validators))
	}
	if gen.Validators[1].StorageBytes != 1073741824 {
		t.Errorf("expected storage_bytes 1 GiB, got %d", gen.Validators[1].StorageBytes)
	}
}

func TestGenesisToValidators(t *testing.T) {
	pub, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	gen := &config.GenesisDoc{
		ChainID:         "test",
		GenesisTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Validators:      []config.GenesisValidator{config.NewGenesisValidator("v1", pub, 100, 2048, 750)},
		ConsensusParams: config.ConsensusParams{MaxValidators: 10},
	}

	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := config.WriteGenesis(path, gen); err != nil {
		t.Fatal(err)
	}
	loaded, err := config.LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}

	vals, err := loaded.ToValidators()
	if err != nil {
		t.Fatalf("ToValidators: %v", err)
	}
	if len(vals) != 1 {
		t.Fatalf("expected 1 validator, got %d", len(vals))
	}
	v := vals[0]
	if v.Address != crypto.AddressFromPubKey(pub) {
		t.Fatal("address mismatch")
	}
	if v.Stake != 100 || v.StorageProvided != 2048 || v.Reputation != 750 || !v.Active {
		t.Fatalf("unexpected record: %+v", v)
	}
}

func TestGenesisRejectsMismatchedAddress(t *testing.T) {
	pub1, _, _ := crypto.GenerateKeypair()
	pub2, _, _ := crypto.GenerateKeypair()
	gv := config.NewGenesisValidator("v", pub1, 1, 0, 0)
	gv.PubKey = hex.EncodeToString(pub2)

	gen := &config.GenesisDoc{
		ChainID:         "test",
		GenesisTime:     time.Now(),
		Validators:      []config.GenesisValidator{gv},
		ConsensusParams: config.ConsensusParams{MaxValidators: 10},
	}
	if err := gen.Validate(); err == nil {
		t.Fatal("should reject address not derived from pub_key")
	}
}

func TestGenesisRejectsPowerless(t *testing.T) {
	pub, _, _ := crypto.GenerateKeypair()
	gen := &config.GenesisDoc{
		ChainID:         "test",
		GenesisTime:     time.Now(),
		Validators:      []config.GenesisValidator{config.NewGenesisValidator("v", pub, 0, 0, 0)},
		ConsensusParams: config.ConsensusParams{MaxValidators: 10},
	}
	if err := gen.Validate(); err == nil {
		t.Fatal("should reject validator without stake, storage or reputation")
	}
}

func TestGenesisValidateRejectsEmpty(t *testing.T) {
	_, err := config.LoadGenesis("/nonexistent/genesis.json")
	if err == nil {
		t.Fatal("should reject missing file")
	}
}

func TestGenesisValidateRejectsNoValidators(t *testing.T) {
	path := writeGenesis(t, `{
  "chain_id": "test",
  "genesis_time": "2024-01-01T00:00:00Z",
  "validators": [],
  "consensus_params": {"max_validators": 10}
}`)

	_, err := config.LoadGenesis(path)
	if err == nil {
		t.Fatal("should reject empty validator set")
	}
}
