// Package config loads HelixDB's JSON configuration file (spec.md §6:
// "Body encoding: JSON... A single directory containing KV files per
// logical table").
//
// Package config generalizes the teacher's env-var-driven
// config.LoadFromEnv()/Validate() two-step (pkg/config/config.go) to a
// single on-disk JSON file, the shape the distilled spec settled on
// after dropping Neo4j-compatible environment variables entirely —
// this store speaks neither Bolt nor Neo4j's deployment conventions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// VectorConfig is the `vector_config` block.
type VectorConfig struct {
	M              int `json:"m"`
	EfConstruction int `json:"ef_construction"`
	EfSearch       int `json:"ef_search"`
}

// GraphConfig is the `graph_config` block.
type GraphConfig struct {
	SecondaryIndices []string `json:"secondary_indices"`
}

// ServerConfig is the `server` block — the gateway's listen address and
// worker-pool sizing (spec.md §6).
type ServerConfig struct {
	Address        string        `json:"address"`
	Port           int           `json:"port"`
	WorkerPoolSize int           `json:"worker_pool_size"`
	QueueTimeout   time.Duration `json:"queue_timeout"`

	// AuthEnabled turns on bearer-token auth for every request (the
	// gateway's optional auth layer, generalizing the teacher's
	// pkg/auth bcrypt-based credential store).
	AuthEnabled bool   `json:"auth_enabled"`
	AuthToken   string `json:"auth_token"`
}

// Config is the full contents of the HelixDB JSON config file.
type Config struct {
	DataDir     string       `json:"data_dir"`
	InMemory    bool         `json:"in_memory"`
	SyncWrites  bool         `json:"sync_writes"`
	DBMaxSizeGB int          `json:"db_max_size_gb"`
	Vector      VectorConfig `json:"vector_config"`
	Graph       GraphConfig  `json:"graph_config"`
	Server      ServerConfig `json:"server"`
	LogLevel    string       `json:"log_level"`
}

// Default returns the configuration a fresh `config init` writes out.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		DBMaxSizeGB: 10,
		Vector: VectorConfig{
			M:              16,
			EfConstruction: 128,
			EfSearch:       768,
		},
		Graph: GraphConfig{SecondaryIndices: nil},
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           6969,
			WorkerPoolSize: 1024,
			QueueTimeout:   5 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadFromFile reads and parses the JSON config file at path, applying
// Default()'s values for any field the file omits.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, herr.Wrap(herr.KindConfig, "read config file", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, herr.Wrap(herr.KindConfig, "parse config file", err)
	}
	return cfg, nil
}

// WriteDefault writes Default()'s configuration to path as indented
// JSON, failing if the file already exists — the Go expression of the
// original implementation's `Config::init_config()` scaffold.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return herr.New(herr.KindConfig, fmt.Sprintf("config file already exists: %s", path))
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return herr.Wrap(herr.KindConfig, "marshal default config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return herr.Wrap(herr.KindConfig, "write config file", err)
	}
	return nil
}

// Validate checks the configuration for logical errors, to be called
// after LoadFromFile and before Open (spec.md §6 invariant: "db_max_size_gb
// bounds the memory-mapped region; vector_config parameters must be
// positive").
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return herr.New(herr.KindConfig, "data_dir must be set unless in_memory is true")
	}
	if c.DBMaxSizeGB <= 0 {
		return herr.New(herr.KindConfig, "db_max_size_gb must be positive")
	}
	if c.Vector.M <= 0 || c.Vector.EfConstruction <= 0 || c.Vector.EfSearch <= 0 {
		return herr.New(herr.KindConfig, "vector_config fields must be positive")
	}
	if c.Server.Port <= 0 {
		return herr.New(herr.KindConfig, "server.port must be positive")
	}
	if c.Server.WorkerPoolSize <= 0 {
		return herr.New(herr.KindConfig, "server.worker_pool_size must be positive")
	}
	if c.Server.AuthEnabled && c.Server.AuthToken == "" {
		return herr.New(herr.KindConfig, "server.auth_token must be set when auth_enabled is true")
	}
	return nil
}

// String returns a safe summary for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, Listen: %s:%d, WorkerPool: %d}",
		c.DataDir, c.InMemory, c.Server.Address, c.Server.Port, c.Server.WorkerPoolSize,
	)
}
