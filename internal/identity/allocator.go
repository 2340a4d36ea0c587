package identity

import (
	"sync"
	"sync/atomic"

	"firestige.xyz/proclat/internal/core"
)

// Key scopes one fallback counter.
type Key struct {
	Function  string
	Procedure core.ProcedureKind
	Signature int
}

// Allocator hands out ordinal ids, one independent counter per Key.
// Counters start at 1. An Allocator lives for one trace (or one merged
// run directory) and is safe for concurrent use.
type Allocator struct {
	mu       sync.Mutex
	counters map[Key]*atomic.Uint64
}

// NewAllocator returns an allocator with no counters.
func NewAllocator() *Allocator {
	return &Allocator{counters: make(map[Key]*atomic.Uint64)}
}

// Next returns the next value of the counter for k.
func (a *Allocator) Next(k Key) uint64 {
	return a.counter(k).Add(1)
}

// issued returns how many values were handed out for k.
func (a *Allocator) issued(k Key) uint64 {
	a.mu.Lock()
	c, ok := a.counters[k]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Load()
}

func (a *Allocator) counter(k Key) *atomic.Uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[k]
	if !ok {
		c = new(atomic.Uint64)
		a.counters[k] = c
	}
	return c
}
