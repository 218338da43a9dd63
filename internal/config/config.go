// Copyright 2025 Certen Protocol
//
// config reads the chunk validation core's runtime configuration from
// environment variables in a plain getEnv/getEnvInt style — no viper,
// no yaml, just os.Getenv with explicit defaults and an explicit
// Validate pass.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything cmd/chunkvalidator needs to wire up a node.
type Config struct {
	// ValidatorAccountID identifies this node's signer. Empty means this
	// node runs as an observer: it never validates or endorses.
	ValidatorAccountID string

	// BLSSeedHex seeds this node's BLS key pair deterministically when
	// BLSKeyPath is unset. Useful for local development and tests; a real
	// deployment should set BLSKeyPath instead so its key survives restarts.
	BLSSeedHex string

	// BLSKeyPath, when set, is where this node's BLS private key is loaded
	// from (or generated and saved to, on first run) via pkg/crypto/bls's
	// KeyManager. Takes priority over BLSSeedHex.
	BLSKeyPath string

	ListenAddr  string
	MetricsAddr string

	// MaxReplayWorkers bounds the CPU worker pool the scheduler offloads
	// replay onto.
	MaxReplayWorkers int

	// StateTransitionDBPath is where the cometbft-db backed
	// StateTransitionData column store is opened.
	StateTransitionDBPath string

	LogLevel string

	// ChunkValidatorPeers lists other validators' addresses for a
	// networked NetworkSender implementation, comma-separated.
	ChunkValidatorPeers []string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	return &Config{
		ValidatorAccountID:    getEnv("CHUNKVALIDATOR_ACCOUNT_ID", ""),
		BLSSeedHex:            getEnv("CHUNKVALIDATOR_BLS_SEED", ""),
		BLSKeyPath:            getEnv("CHUNKVALIDATOR_BLS_KEY_PATH", ""),
		ListenAddr:            getEnv("CHUNKVALIDATOR_LISTEN_ADDR", ":8080"),
		MetricsAddr:           getEnv("CHUNKVALIDATOR_METRICS_ADDR", ":9090"),
		MaxReplayWorkers:      getEnvInt("CHUNKVALIDATOR_MAX_REPLAY_WORKERS", 4),
		StateTransitionDBPath: getEnv("CHUNKVALIDATOR_STATE_TRANSITION_DB_PATH", "./data/state-transitions"),
		LogLevel:              getEnv("CHUNKVALIDATOR_LOG_LEVEL", "info"),
		ChunkValidatorPeers:   parsePeers(getEnv("CHUNKVALIDATOR_PEERS", "")),
	}
}

// Validate checks that a config is internally consistent enough to start a
// node with. It does not require ValidatorAccountID — running as an
// observer is legitimate.
func (c *Config) Validate() error {
	var errs []string
	if c.MaxReplayWorkers <= 0 {
		errs = append(errs, "CHUNKVALIDATOR_MAX_REPLAY_WORKERS must be positive")
	}
	if c.ValidatorAccountID != "" && c.BLSSeedHex == "" && c.BLSKeyPath == "" {
		errs = append(errs, "one of CHUNKVALIDATOR_BLS_SEED or CHUNKVALIDATOR_BLS_KEY_PATH is required when CHUNKVALIDATOR_ACCOUNT_ID is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// parsePeers parses a comma-separated peer list, trimming whitespace and
// dropping empty entries.
func parsePeers(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
