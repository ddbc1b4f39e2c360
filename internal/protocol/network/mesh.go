// Package network connects the three protocol parties of one session with
// mutually authenticated TLS. Each party pins the certificates of the other
// two; no CA is involved.
package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mpc_match/internal/model"
	"net"
	"sort"
	"sync"
	"time"
)

const (
	maxFrameSize = 64 << 20
	dialBackoff  = 100 * time.Millisecond
)

var errPinMismatch = errors.New("certificate does not match pinned peer")

type (
	// Peer is the network identity of one party.
	Peer struct {
		Index int
		Addr  string
		Cert  []byte
	}

	Config struct {
		Self int
		// Listener must already be bound to Peers[Self].Addr. Connect takes
		// ownership and closes it once the handshake phase ends.
		Listener         net.Listener
		Certificate      tls.Certificate
		Peers            []Peer
		HandshakeTimeout time.Duration
	}

	// Mesh is an established set of connections from one party to every
	// other party.
	Mesh struct {
		self  int
		peers map[int]*peerConn

		closeOnce sync.Once
	}

	peerConn struct {
		index int
		conn  net.Conn
		wmu   sync.Mutex
		recv  chan []byte
		done  chan struct{}

		errMu sync.Mutex
		err   error
	}

	established struct {
		index int
		conn  net.Conn
	}
)

// Connect dials every lower-indexed party and accepts every higher-indexed
// one. If the mesh is not complete within HandshakeTimeout it fails with
// model.ErrHandshakeTimeout.
func Connect(ctx context.Context, cfg Config) (*Mesh, error) {
	if err := cfg.validate(); err != nil {
		cfg.Listener.Close()
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	expected := len(cfg.Peers) - 1
	results := make(chan established, expected)
	errs := make(chan error, expected+1)

	go func() {
		<-hctx.Done()
		cfg.Listener.Close()
	}()

	accepting := expected - cfg.Self
	if accepting > 0 {
		go acceptPeers(hctx, cfg, accepting, results, errs)
	}
	for _, p := range cfg.Peers {
		if p.Index < cfg.Self {
			go dialPeer(hctx, cfg, p, results, errs)
		}
	}

	conns := make(map[int]net.Conn, expected)
	fail := func(err error) (*Mesh, error) {
		cancel()
		for _, c := range conns {
			c.Close()
		}
		// late arrivals
		go func() {
			for i := len(conns); i < expected; i++ {
				select {
				case r := <-results:
					r.conn.Close()
				case <-time.After(cfg.HandshakeTimeout):
					return
				}
			}
		}()
		return nil, err
	}

	for len(conns) < expected {
		select {
		case r := <-results:
			if _, dup := conns[r.index]; dup {
				r.conn.Close()
				return fail(fmt.Errorf("%w: duplicate connection from party %d", model.ErrNetwork, r.index))
			}
			conns[r.index] = r.conn
		case err := <-errs:
			return fail(err)
		case <-hctx.Done():
			if errors.Is(hctx.Err(), context.DeadlineExceeded) {
				return fail(fmt.Errorf("%w: party %d after %s", model.ErrHandshakeTimeout, cfg.Self, cfg.HandshakeTimeout))
			}
			return fail(fmt.Errorf("%w: %v", model.ErrNetwork, hctx.Err()))
		}
	}
	cancel()

	m := &Mesh{self: cfg.Self, peers: make(map[int]*peerConn, expected)}
	for idx, c := range conns {
		pc := &peerConn{index: idx, conn: c, recv: make(chan []byte, 64), done: make(chan struct{})}
		m.peers[idx] = pc
		go pc.readLoop()
	}
	return m, nil
}

func (cfg *Config) validate() error {
	if len(cfg.Peers) != model.PartyCount {
		return fmt.Errorf("%w: want %d peers, got %d", model.ErrNetwork, model.PartyCount, len(cfg.Peers))
	}
	for i, p := range cfg.Peers {
		if p.Index != i {
			return fmt.Errorf("%w: peer %d has index %d", model.ErrNetwork, i, p.Index)
		}
		if len(p.Cert) == 0 {
			return fmt.Errorf("%w: peer %d has no certificate", model.ErrNetwork, i)
		}
	}
	if cfg.Self < 0 || cfg.Self >= len(cfg.Peers) {
		return fmt.Errorf("%w: invalid self index %d", model.ErrNetwork, cfg.Self)
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", model.ErrNetwork)
	}
	return nil
}

func acceptPeers(ctx context.Context, cfg Config, n int, results chan<- established, errs chan<- error) {
	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS13,
		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			for _, p := range cfg.Peers {
				if p.Index > cfg.Self && len(raw) > 0 && bytes.Equal(raw[0], p.Cert) {
					return nil
				}
			}
			return errors.New("unknown peer certificate")
		},
	}

	for accepted := 0; accepted < n; {
		conn, err := cfg.Listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				errs <- fmt.Errorf("%w: accept: %v", model.ErrNetwork, err)
			}
			return
		}

		idx, tconn, err := serverHandshake(ctx, conn, serverTLS, cfg)
		if err != nil {
			// a stray or misconfigured client does not abort the session
			conn.Close()
			continue
		}
		results <- established{index: idx, conn: tconn}
		accepted++
	}
}

func serverHandshake(ctx context.Context, conn net.Conn, tlsCfg *tls.Config, cfg Config) (int, net.Conn, error) {
	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	tconn := tls.Server(conn, tlsCfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		return 0, nil, err
	}

	var hello [4]byte
	if _, err := io.ReadFull(tconn, hello[:]); err != nil {
		return 0, nil, err
	}
	idx := int(binary.BigEndian.Uint32(hello[:]))
	if idx <= cfg.Self || idx >= len(cfg.Peers) {
		return 0, nil, fmt.Errorf("unexpected party index %d", idx)
	}

	state := tconn.ConnectionState()
	if len(state.PeerCertificates) == 0 || !bytes.Equal(state.PeerCertificates[0].Raw, cfg.Peers[idx].Cert) {
		return 0, nil, fmt.Errorf("certificate does not belong to party %d", idx)
	}

	conn.SetDeadline(time.Time{})
	return idx, tconn, nil
}

func dialPeer(ctx context.Context, cfg Config, p Peer, results chan<- established, errs chan<- error) {
	clientTLS := &tls.Config{
		Certificates: []tls.Certificate{cfg.Certificate},
		MinVersion:   tls.VersionTLS13,
		// Identity is established by pinning, not by a CA chain.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			if len(raw) == 0 || !bytes.Equal(raw[0], p.Cert) {
				return fmt.Errorf("%w: party %d", errPinMismatch, p.Index)
			}
			return nil
		},
	}
	dialer := &tls.Dialer{Config: clientTLS}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
		if err == nil {
			if err := sendHello(ctx, conn, cfg.Self); err != nil {
				conn.Close()
				errs <- fmt.Errorf("%w: hello to party %d: %v", model.ErrNetwork, p.Index, err)
				return
			}
			results <- established{index: p.Index, conn: conn}
			return
		}

		if errors.Is(err, errPinMismatch) {
			errs <- fmt.Errorf("%w: party %d: %v", model.ErrNetwork, p.Index, err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(dialBackoff):
		}
	}
}

func sendHello(ctx context.Context, conn net.Conn, self int) error {
	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	var hello [4]byte
	binary.BigEndian.PutUint32(hello[:], uint32(self))
	if _, err := conn.Write(hello[:]); err != nil {
		return err
	}
	return conn.SetWriteDeadline(time.Time{})
}

func (m *Mesh) Self() int {
	return m.self
}

// Peers returns the indices of the other parties in ascending order.
func (m *Mesh) Peers() []int {
	out := make([]int, 0, len(m.peers))
	for idx := range m.peers {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (m *Mesh) Send(ctx context.Context, to int, msg []byte) error {
	pc, ok := m.peers[to]
	if !ok {
		return fmt.Errorf("%w: no connection to party %d", model.ErrNetwork, to)
	}
	if len(msg) > maxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds limit", model.ErrNetwork, len(msg))
	}

	pc.wmu.Lock()
	defer pc.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		pc.conn.SetWriteDeadline(deadline)
		defer pc.conn.SetWriteDeadline(time.Time{})
	}

	frame := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[4:], msg)
	if _, err := pc.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: send to party %d: %v", model.ErrNetwork, to, err)
	}
	return nil
}

func (m *Mesh) Recv(ctx context.Context, from int) ([]byte, error) {
	pc, ok := m.peers[from]
	if !ok {
		return nil, fmt.Errorf("%w: no connection to party %d", model.ErrNetwork, from)
	}

	select {
	case msg, ok := <-pc.recv:
		if !ok {
			return nil, fmt.Errorf("%w: party %d: %v", model.ErrNetwork, from, pc.readErr())
		}
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: recv from party %d: %v", model.ErrNetwork, from, ctx.Err())
	}
}

func (m *Mesh) Close() error {
	m.closeOnce.Do(func() {
		for _, pc := range m.peers {
			close(pc.done)
			pc.conn.Close()
		}
	})
	return nil
}

func (pc *peerConn) readLoop() {
	defer close(pc.recv)

	var header [4]byte
	for {
		if _, err := io.ReadFull(pc.conn, header[:]); err != nil {
			pc.setErr(err)
			return
		}
		n := binary.BigEndian.Uint32(header[:])
		if n > maxFrameSize {
			pc.setErr(fmt.Errorf("frame of %d bytes exceeds limit", n))
			pc.conn.Close()
			return
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(pc.conn, msg); err != nil {
			pc.setErr(err)
			return
		}
		select {
		case pc.recv <- msg:
		case <-pc.done:
			return
		}
	}
}

func (pc *peerConn) setErr(err error) {
	pc.errMu.Lock()
	defer pc.errMu.Unlock()
	if pc.err == nil {
		pc.err = err
	}
}

func (pc *peerConn) readErr() error {
	pc.errMu.Lock()
	defer pc.errMu.Unlock()
	if pc.err == nil {
		return io.EOF
	}
	return pc.err
}
