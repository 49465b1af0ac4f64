package effects

import "github.com/cbegin/siopm-go/internal/siopm"

// Router owns the effect chains of the chip's stream slots. Slot 0 is the
// direct output; slots 1 to 7 are sends that channels reach with their
// per-slot volumes ("@s slot,level"). Each send is processed by its chain
// and summed into slot 0, then the slot 0 chain runs as a master chain.
type Router struct {
	chains [siopm.StreamSendSize]*Chain
	gains  [siopm.StreamSendSize]float64
}

func NewRouter() *Router {
	r := &Router{}
	for i := range r.gains {
		r.gains[i] = 1
	}
	return r
}

// SetChain connects c to slot, replacing any previous chain. A nil chain
// disconnects the slot.
func (r *Router) SetChain(slot int, c *Chain) {
	if slot >= 0 && slot < len(r.chains) {
		r.chains[slot] = c
	}
}

// Chain returns the chain connected to slot.
func (r *Router) Chain(slot int) *Chain {
	if slot < 0 || slot >= len(r.chains) {
		return nil
	}
	return r.chains[slot]
}

// SetReturn sets the level at which a send slot is mixed back into slot 0.
func (r *Router) SetReturn(slot int, gain float64) {
	if slot > 0 && slot < len(r.gains) {
		r.gains[slot] = gain
	}
}

// Prepare gives every send slot with a chain its own stream on m and
// resets the chains. Call it before rendering a score.
func (r *Router) Prepare(m *siopm.Module) {
	for i, c := range r.chains {
		if c == nil {
			continue
		}
		c.Reset()
		if i > 0 && m.StreamSlot(i) == nil {
			m.SetStreamSlot(i, siopm.NewStream(m.BufferLength()))
		}
	}
}

// Mix runs the send chains, sums the sends into the output stream and
// runs the master chain. It expects the channels of the block to be
// rendered already.
func (r *Router) Mix(m *siopm.Module) {
	out := m.OutputStream()
	for i := 1; i < len(r.chains); i++ {
		s := m.StreamSlot(i)
		if s == nil {
			continue
		}
		if c := r.chains[i]; c != nil {
			c.Process(s.Buffer)
		}
		out.Mix(s, r.gains[i])
	}
	if c := r.chains[0]; c != nil {
		c.Process(out.Buffer)
	}
}
