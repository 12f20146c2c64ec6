package stream

import "sync"

// Pool hands out providers from a fixed set. The daemon sizes it from
// transcription.pool_size; at the default of one, every session shares the
// same instance and the same physical connection.
type Pool struct {
	mu        sync.Mutex
	providers []*Provider
	next      int
}

// NewPool builds size providers up front via factory. Size is clamped to a
// minimum of one.
func NewPool(size int, factory func() *Provider) *Pool {
	if size < 1 {
		size = 1
	}
	providers := make([]*Provider, size)
	for i := range providers {
		providers[i] = factory()
	}
	return &Pool{providers: providers}
}

// Get returns the next provider round-robin.
func (p *Pool) Get() *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.providers[p.next%len(p.providers)]
	p.next++
	return pr
}

// Size reports the pool capacity.
func (p *Pool) Size() int {
	return len(p.providers)
}

// Each calls fn for every provider, for shutdown sweeps.
func (p *Pool) Each(fn func(*Provider)) {
	for _, pr := range p.providers {
		fn(pr)
	}
}
