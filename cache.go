package fingerprint

import "sync"

// commandCache memoizes the decoded output of external commands for the
// lifetime of one VCS instance.
//
// Keys are exact command lines. The cache never evicts: a single run issues
// a bounded, small number of distinct commands.
type commandCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func newCommandCache() *commandCache {
	return &commandCache{
		entries: make(map[string]string),
	}
}

// GetOrCompute returns the cached value for key, running compute and storing
// its result on a miss. Reads proceed concurrently; a miss holds the write
// lock for the duration of compute plus the insert.
//
// Two concurrent misses for the same key may both run compute. They produce
// the same value, so the second insert overwrites with an identical result:
// wasted work, not incorrectness.
func (c *commandCache) GetOrCompute(key string, compute func() (string, error)) (string, error) {
	// Read first before locking with a write
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		return value, nil
	}

	// Otherwise lock and calculate a new value to write
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := compute()
	if err != nil {
		return "", err
	}

	c.entries[key] = value

	return value, nil
}

// Len returns the number of cached entries.
func (c *commandCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
