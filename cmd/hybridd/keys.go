package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/spf13/cobra"
)

// keyFile is the on-disk form of an ML-DSA-65 node key.
type keyFile struct {
	Address    string `json:"address"`
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Key management commands",
	}

	cmd.AddCommand(keysGenerateCmd())
	cmd.AddCommand(keysShowCmd())

	return cmd
}

func keysGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new ML-DSA-65 keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			pubKey, privKey, err := crypto.GenerateKeypair()
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}

			if output != "" {
				if err := writeNodeKey(output, privKey); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key saved to %s\n", output)
			}

			printKey(cmd.OutOrStdout(), pubKey)
			return nil
		},
	}

	cmd.Flags().String("output", "", "file path to save the key (JSON format)")

	return cmd
}

func keysShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show node key information",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeDir, _ := cmd.Flags().GetString("home")

			key, err := loadNodeKey(filepath.Join(homeDir, nodeKeyFile))
			if err != nil {
				return err
			}

			printKey(cmd.OutOrStdout(), key.Public())
			return nil
		},
	}

	cmd.Flags().String("home", defaultHome(), "node home directory")

	return cmd
}

func printKey(w io.Writer, pub crypto.PublicKey) {
	addr := crypto.AddressFromPubKey(pub)
	fmt.Fprintf(w, "Address:     %s\n", addr)
	fmt.Fprintf(w, "Node ID:     %s\n", addr.Short())
	fmt.Fprintf(w, "Public Key:  %d bytes (ML-DSA-65)\n", len(pub))
}

func writeNodeKey(path string, key *crypto.PrivateKey) error {
	skBytes, err := key.Bytes()
	if err != nil {
		return fmt.Errorf("encode node key: %w", err)
	}
	kf := keyFile{
		Address:    crypto.AddressFromPubKey(key.Public()).String(),
		PublicKey:  key.Public(),
		PrivateKey: skBytes,
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal node key: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write node key: %w", err)
	}

	return nil
}

func loadNodeKey(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node key: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse node key: %w", err)
	}

	key, err := crypto.PrivateKeyFromBytes(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse node key: %w", err)
	}
	if kf.Address != "" && crypto.AddressFromPubKey(key.Public()).String() != kf.Address {
		return nil, errors.New("node key: address does not match private key")
	}
	return key, nil
}
