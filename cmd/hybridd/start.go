package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/node"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the hybrid node",
		RunE:  runStart,
	}

	cmd.Flags().String("home", defaultHome(), "node home directory")
	cmd.Flags().String("config", "", "path to config file (default: <home>/config.toml)")
	cmd.Flags().String("genesis", "", "path to genesis file (default: <home>/genesis.json)")
	cmd.Flags().String("log-mode", "", "override log.mode: development or production")
	cmd.Flags().String("log-level", "", "override log.level (debug, info, warn, error)")

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	homeDir, _ := flags.GetString("home")

	// Load config.
	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = filepath.Join(homeDir, configFile)
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v, _ := flags.GetString("log-mode"); v != "" {
		cfg.Log.Mode = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}

	// Resolve paths relative to home dir.
	if !filepath.IsAbs(cfg.Storage.DBPath) {
		cfg.Storage.DBPath = filepath.Join(homeDir, cfg.Storage.DBPath)
	}

	// Setup logger.
	logger, err := telemetry.NewLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Load node key.
	key, err := loadNodeKey(filepath.Join(homeDir, nodeKeyFile))
	if err != nil {
		return err
	}

	// Load genesis.
	genesisPath, _ := flags.GetString("genesis")
	if genesisPath == "" {
		genesisPath = filepath.Join(homeDir, genesisFile)
	}
	gen, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	// Create and start node.
	n, err := node.NewNode(cfg, key, gen, logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		_ = n.Stop()
		return fmt.Errorf("start node: %w", err)
	}

	logger.Info("hybrid node running; press Ctrl+C to stop",
		zap.String("address", n.Address().String()),
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutdown signal received")

	return n.Stop()
}
