package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// GenesisDoc defines the initial validator set of the chain.
type GenesisDoc struct {
	ChainID         string             `json:"chain_id"`
	GenesisTime     time.Time          `json:"genesis_time"`
	Validators      []GenesisValidator `json:"validators"`
	ConsensusParams ConsensusParams    `json:"consensus_params"`
}

// GenesisValidator describes a validator in the genesis state.
type GenesisValidator struct {
	Address      string `json:"address"`
	PubKey       string `json:"pub_key"`
	Stake        uint64 `json:"stake"`
	StorageBytes uint64 `json:"storage_bytes"`
	Reputation   uint64 `json:"reputation"`
	Name         string `json:"name"`
}

// ConsensusParams holds genesis-level consensus parameters.
type ConsensusParams struct {
	MaxValidators int `json:"max_validators"`
}

// LoadGenesis reads and validates a genesis file from the given path.
func LoadGenesis(path string) (*GenesisDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read file: %w", err)
	}

	var gen GenesisDoc
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("genesis: parse JSON: %w", err)
	}

	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	return &gen, nil
}

// WriteGenesis encodes gen as indented JSON at path.
func WriteGenesis(path string, gen *GenesisDoc) error {
	data, err := json.MarshalIndent(gen, "", "  ")
	if err != nil {
		return fmt.Errorf("genesis: encode JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("genesis: write file: %w", err)
	}
	return nil
}

// Validate checks the genesis document for structural validity.
func (g *GenesisDoc) Validate() error {
	if g.ChainID == "" {
		return errors.New("chain_id must not be empty")
	}
	if g.GenesisTime.IsZero() {
		return errors.New("genesis_time must not be zero")
	}
	if len(g.Validators) == 0 {
		return errors.New("must have at least one validator")
	}

	seen := make(map[string]struct{}, len(g.Validators))
	for i, v := range g.Validators {
		if _, err := v.decode(); err != nil {
			return fmt.Errorf("validator %d: %w", i, err)
		}
		if _, dup := seen[v.Address]; dup {
			return fmt.Errorf("validator %d: duplicate address %s", i, v.Address)
		}
		seen[v.Address] = struct{}{}
		if v.Stake == 0 && v.StorageBytes == 0 && v.Reputation == 0 {
			return fmt.Errorf("validator %d: has no voting power", i)
		}
	}

	if g.ConsensusParams.MaxValidators <= 0 {
		return errors.New("consensus_params.max_validators must be > 0")
	}
	if len(g.Validators) > g.ConsensusParams.MaxValidators {
		return fmt.Errorf("too many validators: got %d, max %d",
			len(g.Validators), g.ConsensusParams.MaxValidators)
	}

	return nil
}

// ToValidators converts the genesis validators to active registry records.
func (g *GenesisDoc) ToValidators() ([]types.Validator, error) {
	vals := make([]types.Validator, len(g.Validators))
	for i, gv := range g.Validators {
		v, err := gv.decode()
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// NewGenesisValidator describes a validator from its public key.
func NewGenesisValidator(name string, pub crypto.PublicKey, stake, storageBytes, reputation uint64) GenesisValidator {
	return GenesisValidator{
		Address:      crypto.AddressFromPubKey(pub).String(),
		PubKey:       hex.EncodeToString(pub),
		Stake:        stake,
		StorageBytes: storageBytes,
		Reputation:   reputation,
		Name:         name,
	}
}

// decode parses the hex fields and checks the address is derived from
// the public key.
func (gv GenesisValidator) decode() (types.Validator, error) {
	if gv.Address == "" {
		return types.Validator{}, errors.New("address must not be empty")
	}
	if gv.PubKey == "" {
		return types.Validator{}, errors.New("pub_key must not be empty")
	}
	addr, err := types.AddressFromHex(gv.Address)
	if err != nil {
		return types.Validator{}, fmt.Errorf("invalid address: %w", err)
	}
	pub, err := hex.DecodeString(gv.PubKey)
	if err != nil {
		return types.Validator{}, fmt.Errorf("invalid pub_key hex: %w", err)
	}
	if derived := crypto.AddressFromPubKey(pub); derived != addr {
		return types.Validator{}, fmt.Errorf("address %s does not match pub_key (want %s)", addr.Short(), derived.Short())
	}

	return types.Validator{
		Address:         addr,
		PublicKey:       pub,
		Stake:           gv.Stake,
		StorageProvided: gv.StorageBytes,
		Reputation:      gv.Reputation,
		Active:          true,
	}, nil
}
