// Copyright 2025 Certen Protocol

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/chunkvalidator/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHUNKVALIDATOR_ACCOUNT_ID", "")
	t.Setenv("CHUNKVALIDATOR_MAX_REPLAY_WORKERS", "")
	t.Setenv("CHUNKVALIDATOR_PEERS", "")

	cfg := config.Load()
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, 4, cfg.MaxReplayWorkers)
	require.Nil(t, cfg.ChunkValidatorPeers)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("CHUNKVALIDATOR_LISTEN_ADDR", ":9999")
	t.Setenv("CHUNKVALIDATOR_MAX_REPLAY_WORKERS", "16")
	t.Setenv("CHUNKVALIDATOR_PEERS", "validator1, validator2 ,, validator3")

	cfg := config.Load()
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 16, cfg.MaxReplayWorkers)
	require.Equal(t, []string{"validator1", "validator2", "validator3"}, cfg.ChunkValidatorPeers)
}

func TestValidateRequiresSeedWhenAccountConfigured(t *testing.T) {
	cfg := &config.Config{MaxReplayWorkers: 1, ValidatorAccountID: "validator0"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CHUNKVALIDATOR_BLS_SEED")
}

func TestValidateRejectsNonPositiveWorkerCount(t *testing.T) {
	cfg := &config.Config{MaxReplayWorkers: 0}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CHUNKVALIDATOR_MAX_REPLAY_WORKERS")
}
