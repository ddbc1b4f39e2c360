package transcript

import (
	"context"
	"mpc_match/internal/cryptographic/hash"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc"
	"mpc_match/internal/protocol/network"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSplitCombine(t *testing.T) {
	e := New()
	input := []byte(`{"age":30,"gender":1}`)

	set, err := e.SplitShares(input)
	require.NoError(t, err)
	for _, s := range set {
		require.Len(t, s, len(input))
	}
	assert.NotEqual(t, input, []byte(set[2]))

	out, err := Combine(set)
	require.NoError(t, err)
	assert.Equal(t, input, out)

	_, err = e.SplitShares(nil)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestMergeShares(t *testing.T) {
	e := New()
	a := model.ShareSet{{1}, {2}, {3}}
	b := model.ShareSet{{4, 4}, {5, 5}, {6, 6}}

	merged, err := e.MergeShares(a, b)
	require.NoError(t, err)
	assert.Equal(t, model.Share{0, 0, 0, 1, 1, 0, 0, 0, 2, 4, 4}, merged[0])
	assert.Equal(t, model.Share{0, 0, 0, 1, 3, 0, 0, 0, 2, 6, 6}, merged[2])

	_, err = e.MergeShares()
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.MergeShares(a, model.ShareSet{{1}, nil, {1}})
	require.ErrorIs(t, err, model.ErrValidation)
}

// run drives every party through the full pipeline over an in-memory mesh.
func run(t *testing.T, circuits [model.PartyCount]*mpc.Circuit) ([model.PartyCount]bool, error) {
	t.Helper()

	e := New()
	nets := network.NewLocal(model.PartyCount)
	merged, err := e.MergeShares(model.ShareSet{{1}, {2}, {3}}, model.ShareSet{{7}, {8}, {9}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var verified [model.PartyCount]bool
	var g errgroup.Group
	for i := 0; i < model.PartyCount; i++ {
		g.Go(func() error {
			c := circuits[i]
			w, err := e.GenerateWitness(ctx, nets[i], merged[i], c)
			if err != nil {
				return err
			}
			pk, vk, err := e.GenerateProvingKey(ctx, nets[i], w, c)
			if err != nil {
				return err
			}
			proof, err := e.Prove(ctx, nets[i], pk, c)
			if err != nil {
				return err
			}
			verified[i], err = e.Verify(proof, vk, c)
			return err
		})
	}
	return verified, g.Wait()
}

func TestPipelineVerifies(t *testing.T) {
	c := &mpc.Circuit{Artifact: []byte("circuit"), CRS: []byte("crs"), Recursive: true}
	verified, err := run(t, [model.PartyCount]*mpc.Circuit{c, c, c})
	require.NoError(t, err)
	assert.Equal(t, [model.PartyCount]bool{true, true, true}, verified)
}

func TestPipelineCircuitMismatch(t *testing.T) {
	c := &mpc.Circuit{Artifact: []byte("circuit")}
	other := &mpc.Circuit{Artifact: []byte("other")}
	_, err := run(t, [model.PartyCount]*mpc.Circuit{c, c, other})
	require.ErrorIs(t, err, model.ErrProtocol)
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	e := New()
	c := &mpc.Circuit{CRS: []byte("crs")}
	vk := verifyingKey([]byte("pk"))

	var body []byte
	for i := 0; i < model.PartyCount; i++ {
		body = append(body, partial(i, vk, c)...)
	}
	proof := append(append([]byte(nil), body...), hash.Sum256(tagProof, vk, body)...)

	ok, err := e.Verify(proof, vk, c)
	require.NoError(t, err)
	assert.True(t, ok)

	proof[0] ^= 1
	ok, err = e.Verify(proof, vk, c)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Verify(proof, verifyingKey([]byte("other")), c)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Verify(proof[:10], vk, c)
	require.ErrorIs(t, err, model.ErrProtocol)
}
