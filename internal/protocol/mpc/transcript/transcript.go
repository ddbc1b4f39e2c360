// Package transcript is a development Engine. Shares are XOR splits, the
// witness is a commitment exchange between the parties and a proof is a
// digest every party can recompute. It proves that the three parties ran the
// same session over the same circuit and nothing about the inputs.
package transcript

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"mpc_match/internal/cryptographic/hash"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc"
)

const digestSize = 32

var (
	tagWitness = []byte("transcript/witness")
	tagKey     = []byte("transcript/pk")
	tagVK      = []byte("transcript/vk")
	tagPartial = []byte("transcript/partial")
	tagProof   = []byte("transcript/proof")
)

type Engine struct {
	rand io.Reader
}

var _ mpc.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{rand: rand.Reader}
}

func (e *Engine) SplitShares(input []byte) (model.ShareSet, error) {
	var set model.ShareSet
	if len(input) == 0 {
		return set, fmt.Errorf("%w: empty input", model.ErrValidation)
	}

	last := append([]byte(nil), input...)
	for i := 0; i < model.PartyCount-1; i++ {
		mask := make([]byte, len(input))
		if _, err := io.ReadFull(e.rand, mask); err != nil {
			return set, err
		}
		for j := range last {
			last[j] ^= mask[j]
		}
		set[i] = mask
	}
	set[model.PartyCount-1] = last
	return set, nil
}

// Combine reverses SplitShares.
func Combine(set model.ShareSet) ([]byte, error) {
	n := len(set[0])
	out := make([]byte, n)
	for _, s := range set {
		if len(s) != n {
			return nil, fmt.Errorf("%w: shares differ in length", model.ErrValidation)
		}
		for j := range out {
			out[j] ^= s[j]
		}
	}
	return out, nil
}

// MergeShares concatenates the i-th share of every set, each prefixed with
// its length.
func (e *Engine) MergeShares(sets ...model.ShareSet) (model.ShareSet, error) {
	var merged model.ShareSet
	if len(sets) == 0 {
		return merged, fmt.Errorf("%w: nothing to merge", model.ErrValidation)
	}

	for i := range merged {
		var buf bytes.Buffer
		for _, set := range sets {
			if set[i] == nil {
				return merged, fmt.Errorf("%w: missing share for party %d", model.ErrValidation, i)
			}
			var prefix [4]byte
			binary.BigEndian.PutUint32(prefix[:], uint32(len(set[i])))
			buf.Write(prefix[:])
			buf.Write(set[i])
		}
		merged[i] = buf.Bytes()
	}
	return merged, nil
}

func (e *Engine) GenerateWitness(ctx context.Context, net mpc.Network, share model.Share, c *mpc.Circuit) (mpc.WitnessShare, error) {
	commitment := hash.Sum256(tagWitness, c.Digest(), []byte{byte(net.Self())}, share)
	all, err := exchange(ctx, net, commitment)
	if err != nil {
		return nil, err
	}
	return bytes.Join(all, nil), nil
}

func (e *Engine) GenerateProvingKey(ctx context.Context, net mpc.Network, w mpc.WitnessShare, c *mpc.Circuit) (mpc.ProvingKey, mpc.VerifyingKey, error) {
	pk := hash.Sum256(tagKey, c.Digest(), w)
	all, err := exchange(ctx, net, pk)
	if err != nil {
		return nil, nil, err
	}
	for i, other := range all {
		if !bytes.Equal(other, pk) {
			return nil, nil, fmt.Errorf("%w: party %d derived a different proving key", model.ErrProtocol, i)
		}
	}
	return pk, verifyingKey(pk), nil
}

func (e *Engine) Prove(ctx context.Context, net mpc.Network, pk mpc.ProvingKey, c *mpc.Circuit) (mpc.Proof, error) {
	vk := verifyingKey(pk)
	all, err := exchange(ctx, net, partial(net.Self(), vk, c))
	if err != nil {
		return nil, err
	}
	body := bytes.Join(all, nil)
	return append(body, hash.Sum256(tagProof, vk, body)...), nil
}

func (e *Engine) Verify(proof mpc.Proof, vk mpc.VerifyingKey, c *mpc.Circuit) (bool, error) {
	if len(proof) != (model.PartyCount+1)*digestSize {
		return false, fmt.Errorf("%w: proof has %d bytes", model.ErrProtocol, len(proof))
	}

	body := proof[:model.PartyCount*digestSize]
	for i := 0; i < model.PartyCount; i++ {
		if !bytes.Equal(body[i*digestSize:(i+1)*digestSize], partial(i, vk, c)) {
			return false, nil
		}
	}
	return bytes.Equal(proof[len(body):], hash.Sum256(tagProof, vk, body)), nil
}

func verifyingKey(pk mpc.ProvingKey) mpc.VerifyingKey {
	return hash.Sum256(tagVK, pk)
}

func partial(index int, vk mpc.VerifyingKey, c *mpc.Circuit) []byte {
	return hash.Sum256(tagPartial, []byte{byte(index)}, vk, c.CRS)
}

// exchange broadcasts msg and collects one message from every peer. The
// result is indexed by party, with msg in the caller's own slot.
func exchange(ctx context.Context, net mpc.Network, msg []byte) ([][]byte, error) {
	peers := net.Peers()
	if len(peers) != model.PartyCount-1 {
		return nil, fmt.Errorf("%w: expected %d peers, got %d", model.ErrProtocol, model.PartyCount-1, len(peers))
	}

	for _, p := range peers {
		if err := net.Send(ctx, p, msg); err != nil {
			return nil, err
		}
	}

	all := make([][]byte, model.PartyCount)
	all[net.Self()] = msg
	for _, p := range peers {
		got, err := net.Recv(ctx, p)
		if err != nil {
			return nil, err
		}
		if len(got) != len(msg) {
			return nil, fmt.Errorf("%w: party %d sent %d bytes, want %d", model.ErrProtocol, p, len(got), len(msg))
		}
		all[p] = got
	}
	return all, nil
}
