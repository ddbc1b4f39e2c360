package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5, cfg.Matching.Workers)
	require.Equal(t, 60*time.Second, cfg.Session.HandshakeTimeout)
	require.Equal(t, 1024, cfg.Storage.MaxShareSize)
	require.Equal(t, 30, cfg.Registry.MaxHandleLength)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
matching:
  workers: 2
  failure_policy: retry
session:
  base_port: 0
  handshake_timeout: 5s
storage:
  share_secret: "00112233445566778899aabbccddeeff"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Matching.Workers)
	require.Equal(t, FailurePolicyRetry, cfg.Matching.FailurePolicy)
	require.Equal(t, 0, cfg.Session.BasePort)
	require.Equal(t, 5*time.Second, cfg.Session.HandshakeTimeout)
	require.Len(t, cfg.Storage.ShareKey(), 16)
	// untouched sections keep their defaults
	require.Equal(t, "mpc_match", cfg.Mongo.Database)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Matching.Workers = 0
	cfg.Matching.FailurePolicy = "sometimes"
	cfg.Storage.ShareSecret = "zz"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "workers")
	require.Contains(t, err.Error(), "failure_policy")
	require.Contains(t, err.Error(), "share_secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
