package orchestrator

import (
	"fmt"
	"sync"
)

// PortAllocator hands out TCP/UDP ports from a configured pool, per
// spec.md §5: "two cases never receive the same port concurrently." It
// is the kind of small mutex-guarded shared-mutable state the Design
// Notes call for — not a distributed allocator, just enough to avoid
// port collisions between concurrently dispatched cases on one host.
type PortAllocator struct {
	mu        sync.Mutex
	available []int
	inUse     map[int]bool
}

// NewPortAllocator builds an allocator over the inclusive range
// [low, high].
func NewPortAllocator(low, high int) *PortAllocator {
	pool := make([]int, 0, high-low+1)
	for p := low; p <= high; p++ {
		pool = append(pool, p)
	}
	return &PortAllocator{available: pool, inUse: make(map[int]bool)}
}

// Acquire reserves count ports from the pool, returning an error if the
// pool is exhausted.
func (p *PortAllocator) Acquire(count int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count > len(p.available) {
		return nil, fmt.Errorf("port pool exhausted: requested %d, %d remain", count, len(p.available))
	}

	out := p.available[:count]
	p.available = p.available[count:]
	for _, port := range out {
		p.inUse[port] = true
	}

	result := make([]int, len(out))
	copy(result, out)
	return result, nil
}

// Release returns ports to the pool for reuse by a later case.
func (p *PortAllocator) Release(ports []int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, port := range ports {
		if p.inUse[port] {
			delete(p.inUse, port)
			p.available = append(p.available, port)
		}
	}
}
