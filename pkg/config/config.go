// Copyright 2025 Certen Protocol
//
// Package config loads runtime configuration for the Store and Block
// Producer processes from environment variables, with an optional YAML
// overlay for the scheduling cadences and size limits operators tune per
// deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a single process. Both cmd/store and
// cmd/blockproducer load the same struct; each reads only the fields it
// needs.
type Config struct {
	// Identity / logging
	NodeID   string
	LogLevel string
	LogJSON  bool

	// Data directory: holds the sqlite database file and one raw block
	// blob per committed block.
	DataDir string

	// Store process
	StoreListenAddr   string
	StoreMetricsAddr  string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	StatsInterval     time.Duration

	// Block Producer process
	BlockProducerListenAddr  string
	BlockProducerMetricsAddr string
	StoreAddr                string // address of the Store RPC service
	StoreCallTimeout         time.Duration

	// Mempool scheduling cadences
	BatchSelectInterval time.Duration
	BlockSelectInterval time.Duration
	ExpirySweepInterval time.Duration

	// Mempool size limits
	MaxAccountsPerBlock int
	MaxNotesPerBlock    int
	MaxInputNotesPerTx  int
	MaxOutputNotesPerTx int
	MaxTxPerBatch       int
	MaxBatchesPerBlock  int
	NullifierPrefixBits int

	// Prover orchestration
	BatchProverURL     string
	BlockProverURL     string
	ProverCallTimeout  time.Duration
	MaxConcurrentProve int
	ProverMaxRetries   int
	SimulateProver     bool
}

// Overlay is the subset of Config that may additionally be supplied via a
// YAML file, for the knobs operators are most likely to retune without a
// redeploy.
type Overlay struct {
	BatchSelectInterval Duration `yaml:"batch_select_interval"`
	BlockSelectInterval Duration `yaml:"block_select_interval"`
	ExpirySweepInterval Duration `yaml:"expiry_sweep_interval"`
	MaxAccountsPerBlock int      `yaml:"max_accounts_per_block"`
	MaxNotesPerBlock    int      `yaml:"max_notes_per_block"`
	ProverMaxRetries    int      `yaml:"prover_max_retries"`
}

// Duration wraps time.Duration with YAML marshaling via its string form,
// e.g. "15s", "2m".
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads configuration from environment variables. Call
// LoadYAMLOverlay afterward if an overlay file is configured.
func Load() (*Config, error) {
	cfg := &Config{
		NodeID:   getEnv("NODE_ID", "node-0"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", true),

		DataDir: getEnv("DATA_DIR", "./data"),

		StoreListenAddr:   getEnv("STORE_LISTEN_ADDR", "127.0.0.1:28080"),
		StoreMetricsAddr:  getEnv("STORE_METRICS_ADDR", "127.0.0.1:29080"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 16),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 4),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		StatsInterval:     getEnvDuration("STORE_STATS_INTERVAL", 5*time.Minute),

		BlockProducerListenAddr:  getEnv("BLOCK_PRODUCER_LISTEN_ADDR", "127.0.0.1:28081"),
		BlockProducerMetricsAddr: getEnv("BLOCK_PRODUCER_METRICS_ADDR", "127.0.0.1:29081"),
		StoreAddr:                getEnv("STORE_ADDR", "127.0.0.1:28080"),
		StoreCallTimeout:         getEnvDuration("STORE_CALL_TIMEOUT", 5*time.Second),

		BatchSelectInterval: getEnvDuration("BATCH_SELECT_INTERVAL", 2*time.Second),
		BlockSelectInterval: getEnvDuration("BLOCK_SELECT_INTERVAL", 5*time.Second),
		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", 10*time.Second),

		MaxAccountsPerBlock: getEnvInt("MAX_ACCOUNTS_PER_BLOCK", 64),
		MaxNotesPerBlock:    getEnvInt("MAX_NOTES_PER_BLOCK", 1024),
		MaxInputNotesPerTx:  getEnvInt("MAX_INPUT_NOTES_PER_TX", 16),
		MaxOutputNotesPerTx: getEnvInt("MAX_OUTPUT_NOTES_PER_TX", 16),
		MaxTxPerBatch:       getEnvInt("MAX_TX_PER_BATCH", 32),
		MaxBatchesPerBlock:  getEnvInt("MAX_BATCHES_PER_BLOCK", 16),
		NullifierPrefixBits: getEnvInt("NULLIFIER_PREFIX_BITS", 16),

		BatchProverURL:     getEnv("BATCH_PROVER_URL", ""),
		BlockProverURL:     getEnv("BLOCK_PROVER_URL", ""),
		ProverCallTimeout:  getEnvDuration("PROVER_CALL_TIMEOUT", 30*time.Second),
		MaxConcurrentProve: getEnvInt("MAX_CONCURRENT_PROVE", 4),
		ProverMaxRetries:   getEnvInt("PROVER_MAX_RETRIES", 5),
		SimulateProver:     getEnvBool("SIMULATE_PROVER", false),
	}

	return cfg, nil
}

// LoadYAMLOverlay merges an Overlay read from path into cfg. Zero-value
// overlay fields are left untouched so an operator can override only the
// settings they care about.
func LoadYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay: %w", err)
	}
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config overlay: %w", err)
	}
	if overlay.BatchSelectInterval != 0 {
		cfg.BatchSelectInterval = time.Duration(overlay.BatchSelectInterval)
	}
	if overlay.BlockSelectInterval != 0 {
		cfg.BlockSelectInterval = time.Duration(overlay.BlockSelectInterval)
	}
	if overlay.ExpirySweepInterval != 0 {
		cfg.ExpirySweepInterval = time.Duration(overlay.ExpirySweepInterval)
	}
	if overlay.MaxAccountsPerBlock != 0 {
		cfg.MaxAccountsPerBlock = overlay.MaxAccountsPerBlock
	}
	if overlay.MaxNotesPerBlock != 0 {
		cfg.MaxNotesPerBlock = overlay.MaxNotesPerBlock
	}
	if overlay.ProverMaxRetries != 0 {
		cfg.ProverMaxRetries = overlay.ProverMaxRetries
	}
	return nil
}

// Validate checks invariants that must hold regardless of which process
// is loading the config.
func (c *Config) Validate() error {
	var errs []string
	if c.DataDir == "" {
		errs = append(errs, "DATA_DIR must not be empty")
	}
	if c.NullifierPrefixBits <= 0 || c.NullifierPrefixBits > 16 {
		errs = append(errs, "NULLIFIER_PREFIX_BITS must be in (0, 16]")
	}
	if c.MaxAccountsPerBlock <= 0 {
		errs = append(errs, "MAX_ACCOUNTS_PER_BLOCK must be positive")
	}
	if c.MaxNotesPerBlock <= 0 {
		errs = append(errs, "MAX_NOTES_PER_BLOCK must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
