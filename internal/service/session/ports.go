package session

import (
	"fmt"
	"mpc_match/internal/model"
	"sync"
)

// portPool hands out disjoint port triples. Slot k maps party p to
// base + p*width + k, so a span of 3000 from 10000 gives parties the ranges
// 10000, 11000 and 12000.
type portPool struct {
	base  int
	width int

	mu   sync.Mutex
	used []bool
	next int
}

func newPortPool(base, span int) *portPool {
	width := span / model.PartyCount
	return &portPool{base: base, width: width, used: make([]bool, width)}
}

func (p *portPool) acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.width; i++ {
		slot := (p.next + i) % p.width
		if !p.used[slot] {
			p.used[slot] = true
			p.next = (slot + 1) % p.width
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: all %d port slots in use", model.ErrNetwork, p.width)
}

func (p *portPool) release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used[slot] = false
}

func (p *portPool) port(slot, party int) int {
	return p.base + party*p.width + slot
}
