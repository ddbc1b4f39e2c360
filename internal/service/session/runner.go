// Package session runs one three-party proving session for a candidate pair.
package session

import (
	"context"
	"errors"
	"fmt"
	"mpc_match/internal/config"
	"mpc_match/internal/cryptographic/certificate"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc"
	"mpc_match/internal/protocol/network"
	"mpc_match/internal/utils/log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	generatedCertTTL = time.Hour
	bindAttempts     = 3
)

type Runner struct {
	cfg     *config.SessionConfig
	engine  mpc.Engine
	circuit *mpc.Circuit
	ports   *portPool

	certOnce sync.Once
	certs    [model.PartyCount]*certificate.Party
	certErr  error
}

func NewRunner(cfg *config.SessionConfig, engine mpc.Engine, circuit *mpc.Circuit) *Runner {
	r := &Runner{cfg: cfg, engine: engine, circuit: circuit}
	if cfg.BasePort > 0 {
		r.ports = newPortPool(cfg.BasePort, cfg.PortSpan)
	}
	return r
}

// RunSession reports whether all three parties verified the proof over
// merged. A clean rejection is (false, nil); handshake and transport
// failures wrap model.ErrNetwork and engine failures wrap model.ErrProtocol.
// Ports and certificates belong to this session until it returns.
func (r *Runner) RunSession(ctx context.Context, merged *model.MergedShareSet) (bool, error) {
	logger := log.With(
		zap.String("session", uuid.NewString()),
		zap.String("user_a", merged.UserA),
		zap.String("user_b", merged.UserB),
	)
	start := time.Now()

	certs, err := r.certificates()
	if err != nil {
		return false, fmt.Errorf("%w: certificates: %v", model.ErrNetwork, err)
	}

	listeners, release, err := r.bind()
	if err != nil {
		return false, err
	}
	defer release()

	peers := make([]network.Peer, model.PartyCount)
	for i := range peers {
		peers[i] = network.Peer{Index: i, Addr: listeners[i].Addr().String(), Cert: certs[i].DER}
	}

	var verified [model.PartyCount]bool
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < model.PartyCount; i++ {
		g.Go(func() error {
			var err error
			verified[i], err = r.runParty(gctx, logger.With(zap.Int("party", i)), network.Config{
				Self:             i,
				Listener:         listeners[i],
				Certificate:      certs[i].TLS,
				Peers:            peers,
				HandshakeTimeout: r.cfg.HandshakeTimeout,
			}, merged.Shares[i])
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("session failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return false, err
	}

	ok := verified[0] && verified[1] && verified[2]
	logger.Info("session finished", zap.Bool("verified", ok), zap.Duration("elapsed", time.Since(start)))
	return ok, nil
}

func (r *Runner) runParty(ctx context.Context, logger *zap.Logger, cfg network.Config, share model.Share) (bool, error) {
	stage := time.Now()
	lap := func(name string) {
		logger.Debug("stage done", zap.String("stage", name), zap.Duration("elapsed", time.Since(stage)))
		stage = time.Now()
	}

	mesh, err := network.Connect(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer mesh.Close()
	lap("handshake")

	w, err := r.engine.GenerateWitness(ctx, mesh, share, r.circuit)
	if err != nil {
		return false, engineError("witness", err)
	}
	lap("witness")

	pk, vk, err := r.engine.GenerateProvingKey(ctx, mesh, w, r.circuit)
	if err != nil {
		return false, engineError("proving key", err)
	}
	lap("proving key")

	proof, err := r.engine.Prove(ctx, mesh, pk, r.circuit)
	if err != nil {
		return false, engineError("prove", err)
	}
	lap("prove")

	ok, err := r.engine.Verify(proof, vk, r.circuit)
	if err != nil {
		return false, engineError("verify", err)
	}
	lap("verify")

	if !ok {
		logger.Warn("proof rejected")
	}
	return ok, nil
}

// engineError keeps transport failures classified as such and files
// everything else under model.ErrProtocol.
func engineError(stage string, err error) error {
	if errors.Is(err, model.ErrNetwork) || errors.Is(err, model.ErrProtocol) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrProtocol, stage, err)
}

func (r *Runner) certificates() ([model.PartyCount]*certificate.Party, error) {
	if r.cfg.CertDir == "" {
		var certs [model.PartyCount]*certificate.Party
		for i := range certs {
			p, err := certificate.NewEd25519Party("party-"+strconv.Itoa(i), generatedCertTTL)
			if err != nil {
				return certs, err
			}
			certs[i] = p
		}
		return certs, nil
	}

	r.certOnce.Do(func() {
		for i := range r.certs {
			if r.certs[i], r.certErr = certificate.LoadParty(r.cfg.CertDir, i); r.certErr != nil {
				return
			}
		}
	})
	return r.certs, r.certErr
}

// bind opens one listener per party. With a port pool it retries on the
// next slot when a port is taken by something outside this process.
func (r *Runner) bind() ([]net.Listener, func(), error) {
	if r.ports == nil {
		lns, err := listenAll(func(int) string { return net.JoinHostPort(r.cfg.Host, "0") })
		return lns, func() {}, err
	}

	var busy []int
	defer func() {
		for _, slot := range busy {
			r.ports.release(slot)
		}
	}()

	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		slot, err := r.ports.acquire()
		if err != nil {
			return nil, nil, err
		}

		lns, err := listenAll(func(party int) string {
			return net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.ports.port(slot, party)))
		})
		if err != nil {
			busy = append(busy, slot)
			lastErr = err
			continue
		}
		return lns, func() { r.ports.release(slot) }, nil
	}
	return nil, nil, lastErr
}

func listenAll(addr func(party int) string) ([]net.Listener, error) {
	lns := make([]net.Listener, 0, model.PartyCount)
	for i := 0; i < model.PartyCount; i++ {
		ln, err := net.Listen("tcp", addr(i))
		if err != nil {
			for _, l := range lns {
				l.Close()
			}
			return nil, fmt.Errorf("%w: listen for party %d: %v", model.ErrNetwork, i, err)
		}
		lns = append(lns, ln)
	}
	return lns, nil
}
