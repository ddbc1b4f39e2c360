package network

import (
	"context"
	"fmt"
	"mpc_match/internal/model"
)

// Local is an in-process mesh endpoint. All endpoints returned by NewLocal
// share one set of channels.
type Local struct {
	self  int
	n     int
	links [][]chan []byte
}

// NewLocal creates n connected endpoints. links[from][to] carries messages
// from party from to party to.
func NewLocal(n int) []*Local {
	links := make([][]chan []byte, n)
	for i := range links {
		links[i] = make([]chan []byte, n)
		for j := range links[i] {
			if i != j {
				links[i][j] = make(chan []byte, 64)
			}
		}
	}

	out := make([]*Local, n)
	for i := range out {
		out[i] = &Local{self: i, n: n, links: links}
	}
	return out
}

func (l *Local) Self() int {
	return l.self
}

func (l *Local) Peers() []int {
	out := make([]int, 0, l.n-1)
	for i := 0; i < l.n; i++ {
		if i != l.self {
			out = append(out, i)
		}
	}
	return out
}

func (l *Local) Send(ctx context.Context, to int, msg []byte) error {
	if to < 0 || to >= l.n || to == l.self {
		return fmt.Errorf("%w: invalid target party %d", model.ErrNetwork, to)
	}
	select {
	case l.links[l.self][to] <- append([]byte(nil), msg...):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", model.ErrNetwork, ctx.Err())
	}
}

func (l *Local) Recv(ctx context.Context, from int) ([]byte, error) {
	if from < 0 || from >= l.n || from == l.self {
		return nil, fmt.Errorf("%w: invalid source party %d", model.ErrNetwork, from)
	}
	select {
	case msg := <-l.links[from][l.self]:
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, ctx.Err())
	}
}

func (l *Local) Close() error {
	return nil
}
