// ABOUTME: Fixed-capacity FIFO of messages backing the bus history.

package bus

import "github.com/2389/stream-agents/internal/agent"

// ring overwrites its oldest entry once full.
type ring struct {
	buf   []agent.Message
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]agent.Message, capacity)}
}

func (r *ring) push(msg agent.Message) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = msg
		r.n++
		return
	}
	r.buf[r.start] = msg
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) items() []agent.Message {
	out := make([]agent.Message, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.n }

func (r *ring) cap() int { return len(r.buf) }
