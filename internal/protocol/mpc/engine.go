// Package mpc defines the contract of the three-party proving engine that a
// session drives. The engine owns share arithmetic, witness derivation, key
// generation and the proof system; callers treat every call as opaque,
// possibly slow and possibly failing.
package mpc

import (
	"context"
	"mpc_match/internal/model"
)

type (
	// Network is one party's view of an established session mesh.
	Network interface {
		Self() int
		// Peers returns the other party indices in ascending order.
		Peers() []int
		Send(ctx context.Context, to int, msg []byte) error
		Recv(ctx context.Context, from int) ([]byte, error)
	}

	WitnessShare []byte
	ProvingKey   []byte
	VerifyingKey []byte
	Proof        []byte

	Engine interface {
		// SplitShares turns a serialized profile into one share per party.
		SplitShares(input []byte) (model.ShareSet, error)
		// MergeShares combines several users' share sets elementwise per
		// party index.
		MergeShares(sets ...model.ShareSet) (model.ShareSet, error)

		GenerateWitness(ctx context.Context, net Network, share model.Share, c *Circuit) (WitnessShare, error)
		GenerateProvingKey(ctx context.Context, net Network, w WitnessShare, c *Circuit) (ProvingKey, VerifyingKey, error)
		Prove(ctx context.Context, net Network, pk ProvingKey, c *Circuit) (Proof, error)
		Verify(proof Proof, vk VerifyingKey, c *Circuit) (bool, error)
	}
)

// Merge builds the per-party input of a session between two users.
func Merge(e Engine, userA string, a model.ShareSet, userB string, b model.ShareSet) (*model.MergedShareSet, error) {
	merged, err := e.MergeShares(a, b)
	if err != nil {
		return nil, err
	}
	return &model.MergedShareSet{UserA: userA, UserB: userB, Shares: merged}, nil
}
