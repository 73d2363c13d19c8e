// Package main provides the HelixDB CLI entry point.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/suxatcode/helix-db-sub002/internal/config"
	"github.com/suxatcode/helix-db-sub002/internal/gateway"
	"github.com/suxatcode/helix-db-sub002/internal/query"
	"github.com/suxatcode/helix-db-sub002/internal/router"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "helixdb",
		Short: "HelixDB - embedded graph and vector database",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("helixdb v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HelixDB gateway",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "./helixdb.json", "Path to the JSON configuration file")
	rootCmd.AddCommand(serveCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file management",
	}
	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE:  runConfigInit,
	}
	configInitCmd.Flags().String("path", "./helixdb.json", "Path to write the configuration file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	logger.Info("starting helixdb", "config", cfg.String())

	eng, err := storage.Open(storage.Options{
		DataDir:          cfg.DataDir,
		InMemory:         cfg.InMemory,
		SyncWrites:       cfg.SyncWrites,
		DBMaxSizeGB:      cfg.DBMaxSizeGB,
		SecondaryIndices: cfg.Graph.SecondaryIndices,
		Vector: storage.VectorConfig{
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
			EfSearch:       cfg.Vector.EfSearch,
		},
		Log: logger,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer eng.Close()

	reg := router.NewRegistry()
	query.Register(reg)
	rt := router.Build(reg, eng)

	srv, err := gateway.New(cfg.Server, rt, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error(err, "gateway stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return srv.Stop()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	fmt.Printf("wrote default configuration to %s\n", path)
	return nil
}
