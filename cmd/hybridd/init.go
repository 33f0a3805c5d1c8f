package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [moniker]",
		Short: "Initialize a new hybrid node",
		Args:  cobra.ExactArgs(1),
		RunE:  runInit,
	}

	cmd.Flags().String("home", defaultHome(), "node home directory")
	cmd.Flags().String("chain-id", "hybrid-devnet", "chain ID")
	cmd.Flags().Uint64("stake", 100, "bonded stake of the genesis validator")
	cmd.Flags().Uint64("storage-bytes", power.BytesPerGiB, "pledged storage of the genesis validator")
	cmd.Flags().Uint64("reputation", 0, "initial reputation of the genesis validator")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	moniker := args[0]
	flags := cmd.Flags()
	homeDir, _ := flags.GetString("home")
	chainID, _ := flags.GetString("chain-id")
	stake, _ := flags.GetUint64("stake")
	storageBytes, _ := flags.GetUint64("storage-bytes")
	reputation, _ := flags.GetUint64("reputation")

	keyPath := filepath.Join(homeDir, nodeKeyFile)
	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("node already initialized at %s", homeDir)
	}

	// Create home directory structure.
	for _, dir := range []string{homeDir, filepath.Join(homeDir, "data")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Generate node key.
	pubKey, privKey, err := crypto.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	if err := writeNodeKey(keyPath, privKey); err != nil {
		return err
	}

	// Write default config.
	cfg := config.DefaultConfig()
	cfg.Moniker = moniker
	cfg.ChainID = chainID
	if err := config.WriteFile(filepath.Join(homeDir, configFile), cfg); err != nil {
		return err
	}

	// Write a single-validator genesis.
	gen := &config.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: time.Now().UTC().Truncate(time.Second),
		Validators: []config.GenesisValidator{
			config.NewGenesisValidator(moniker, pubKey, stake, storageBytes, reputation),
		},
		ConsensusParams: config.ConsensusParams{MaxValidators: 100},
	}
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := config.WriteGenesis(filepath.Join(homeDir, genesisFile), gen); err != nil {
		return err
	}

	addr := crypto.AddressFromPubKey(pubKey)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized hybrid node\n")
	fmt.Fprintf(out, "  Home:     %s\n", homeDir)
	fmt.Fprintf(out, "  Node ID:  %s\n", addr.Short())
	fmt.Fprintf(out, "  Chain:    %s\n", chainID)
	fmt.Fprintf(out, "  Moniker:  %s\n", moniker)
	fmt.Fprintf(out, "\nStart with: hybridd start --home %s\n", homeDir)

	return nil
}
