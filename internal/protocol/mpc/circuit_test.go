package mpc

import (
	"mpc_match/internal/config"
	"mpc_match/internal/model"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCircuit(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "circuit.json")
	crs := filepath.Join(dir, "crs.bin")
	require.NoError(t, os.WriteFile(artifact, []byte("artifact"), 0o600))
	require.NoError(t, os.WriteFile(crs, []byte("crs"), 0o600))

	c, err := LoadCircuit(&config.CircuitConfig{ArtifactPath: artifact, CRSPath: crs, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("artifact"), c.Artifact)
	assert.Equal(t, []byte("crs"), c.CRS)
	assert.True(t, c.Recursive)
	assert.Len(t, c.Digest(), 32)

	empty, err := LoadCircuit(&config.CircuitConfig{})
	require.NoError(t, err)
	assert.NotEqual(t, c.Digest(), empty.Digest())

	_, err = LoadCircuit(&config.CircuitConfig{ArtifactPath: filepath.Join(dir, "missing")})
	require.ErrorIs(t, err, model.ErrStorage)
}

func TestDigestDependsOnRecursion(t *testing.T) {
	a := &Circuit{Artifact: []byte("x"), Recursive: true}
	b := &Circuit{Artifact: []byte("x")}
	assert.NotEqual(t, a.Digest(), b.Digest())
}
