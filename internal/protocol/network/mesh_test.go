package network

import (
	"context"
	"fmt"
	"mpc_match/internal/cryptographic/certificate"
	"mpc_match/internal/model"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type party struct {
	cert *certificate.Party
	ln   net.Listener
}

func setupParties(t *testing.T) ([]party, []Peer) {
	t.Helper()

	parties := make([]party, model.PartyCount)
	peers := make([]Peer, model.PartyCount)
	for i := range parties {
		cert, err := certificate.NewEd25519Party(fmt.Sprintf("party-%d", i), time.Hour)
		require.NoError(t, err)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		parties[i] = party{cert: cert, ln: ln}
		peers[i] = Peer{Index: i, Addr: ln.Addr().String(), Cert: cert.DER}
	}
	return parties, peers
}

func connectAll(t *testing.T, parties []party, peers []Peer, timeout time.Duration, only ...int) ([]*Mesh, []error) {
	t.Helper()

	run := only
	if len(run) == 0 {
		run = []int{0, 1, 2}
	}

	meshes := make([]*Mesh, len(parties))
	errs := make([]error, len(parties))
	var wg sync.WaitGroup
	for _, i := range run {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meshes[i], errs[i] = Connect(context.Background(), Config{
				Self:             i,
				Listener:         parties[i].ln,
				Certificate:      parties[i].cert.TLS,
				Peers:            peers,
				HandshakeTimeout: timeout,
			})
		}(i)
	}
	wg.Wait()
	return meshes, errs
}

func TestMeshExchange(t *testing.T) {
	parties, peers := setupParties(t)
	meshes, errs := connectAll(t, parties, peers, 5*time.Second)
	for i, err := range errs {
		require.NoError(t, err, "party %d", i)
	}
	defer func() {
		for _, m := range meshes {
			m.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, m := range meshes {
		require.Len(t, m.Peers(), 2)
		for _, to := range m.Peers() {
			require.NoError(t, m.Send(ctx, to, []byte(fmt.Sprintf("%d->%d", m.Self(), to))))
		}
	}
	for _, m := range meshes {
		for _, from := range m.Peers() {
			msg, err := m.Recv(ctx, from)
			require.NoError(t, err)
			require.Equal(t, fmt.Sprintf("%d->%d", from, m.Self()), string(msg))
		}
	}
}

func TestMeshHandshakeTimeout(t *testing.T) {
	parties, peers := setupParties(t)
	// party 2 never shows up
	parties[2].ln.Close()

	_, errs := connectAll(t, parties, peers, 300*time.Millisecond, 0, 1)
	require.ErrorIs(t, errs[0], model.ErrHandshakeTimeout)
	require.ErrorIs(t, errs[0], model.ErrNetwork)
	require.ErrorIs(t, errs[1], model.ErrHandshakeTimeout)
}

func TestMeshRejectsUnpinnedCertificate(t *testing.T) {
	parties, peers := setupParties(t)

	impostor, err := certificate.NewEd25519Party("impostor", time.Hour)
	require.NoError(t, err)
	parties[1].cert = impostor

	_, errs := connectAll(t, parties, peers, 500*time.Millisecond)
	require.Error(t, errs[0])
	require.Error(t, errs[1])
	require.ErrorIs(t, errs[1], model.ErrNetwork)
}

func TestRecvAfterPeerClosed(t *testing.T) {
	parties, peers := setupParties(t)
	meshes, errs := connectAll(t, parties, peers, 5*time.Second)
	for _, err := range errs {
		require.NoError(t, err)
	}
	defer meshes[0].Close()
	defer meshes[2].Close()

	meshes[1].Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := meshes[0].Recv(ctx, 1)
	require.ErrorIs(t, err, model.ErrNetwork)
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	eps := NewLocal(3)

	require.NoError(t, eps[0].Send(ctx, 2, []byte("hi")))
	msg, err := eps[2].Recv(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "hi", string(msg))

	require.ErrorIs(t, eps[0].Send(ctx, 0, nil), model.ErrNetwork)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = eps[1].Recv(short, 0)
	require.ErrorIs(t, err, model.ErrNetwork)
}
