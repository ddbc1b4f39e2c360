package mpc

import (
	"fmt"
	"mpc_match/internal/config"
	"mpc_match/internal/cryptographic/hash"
	"mpc_match/internal/model"
	"os"
	"sync"
)

// Circuit is the shared definition every party of a session proves against.
type Circuit struct {
	Artifact []byte
	// CRS is the common reference string the prover consumes.
	CRS       []byte
	Recursive bool

	digestOnce sync.Once
	digest     []byte
}

// LoadCircuit reads the circuit artifact and CRS named by cfg. Empty paths
// yield empty blobs, which the development engine accepts.
func LoadCircuit(cfg *config.CircuitConfig) (*Circuit, error) {
	c := &Circuit{Recursive: cfg.Recursive}

	var err error
	if cfg.ArtifactPath != "" {
		if c.Artifact, err = os.ReadFile(cfg.ArtifactPath); err != nil {
			return nil, fmt.Errorf("%w: read circuit artifact: %v", model.ErrStorage, err)
		}
	}
	if cfg.CRSPath != "" {
		if c.CRS, err = os.ReadFile(cfg.CRSPath); err != nil {
			return nil, fmt.Errorf("%w: read crs: %v", model.ErrStorage, err)
		}
	}

	return c, nil
}

// Digest identifies the circuit. Parties that disagree on it cannot produce
// a proof the others accept.
func (c *Circuit) Digest() []byte {
	c.digestOnce.Do(func() {
		flag := []byte{0}
		if c.Recursive {
			flag[0] = 1
		}
		c.digest = hash.Sum256([]byte(hash.ShareSetDigest(c.Artifact, c.CRS)), flag)
	})
	return c.digest
}
