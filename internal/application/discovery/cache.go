package discovery

import (
	"sync"
	"time"
)

// knownCache tracks every address discovery has ever produced a row for
// (grow-on-write, no eviction) and when each was last analyzed (evicted
// only by the cooldown comparison, never on a timer).
type knownCache struct {
	mu           sync.Mutex
	known        map[string]bool
	lastAnalyzed map[string]time.Time
	pending      map[string]bool
}

func newKnownCache() *knownCache {
	return &knownCache{
		known:        make(map[string]bool),
		lastAnalyzed: make(map[string]time.Time),
		pending:      make(map[string]bool),
	}
}

// seed populates the known set and last-analyzed map from a startup load.
func (c *knownCache) seed(addresses map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, at := range addresses {
		c.known[addr] = true
		c.lastAnalyzed[addr] = at
	}
}

// shouldEnqueue reports whether address should be queued for analysis:
// unknown, or known but stale beyond cooldown, and not already pending.
func (c *knownCache) shouldEnqueue(address string, cooldown time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[address] {
		return false
	}
	if !c.known[address] {
		c.pending[address] = true
		return true
	}
	last, ok := c.lastAnalyzed[address]
	if !ok || now.Sub(last) > cooldown {
		c.pending[address] = true
		return true
	}
	return false
}

// markDone records a completed analysis and clears the pending flag.
func (c *knownCache) markDone(address string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[address] = true
	c.lastAnalyzed[address] = at
	delete(c.pending, address)
}

// markFailed clears the pending flag without marking the address known,
// so a failed analysis gets retried on the wallet's next trade.
func (c *knownCache) markFailed(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, address)
}
