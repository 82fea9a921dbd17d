package escrow

import (
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/keyoracle/scopedkey"
)

// PlaintextCacheTTL bounds how long recovered plaintext may sit in the
// one-time cache before it is considered unreachable.
const PlaintextCacheTTL = time.Hour

// plaintextSlot holds one recovery's recovered plaintext until it is
// fetched once or expires.
type plaintextSlot struct {
	buf       *scopedkey.Buffer
	expiresAt time.Time
}

// PlaintextCache is a one-time release cache: Put stores recovered
// plaintext under a recovery_id, and the first Take call after that
// destroys the cached copy, releasing the plaintext exactly once.
// Safe for concurrent use.
type PlaintextCache struct {
	mu    sync.Mutex
	slots map[string]*plaintextSlot
}

// NewPlaintextCache returns an empty PlaintextCache.
func NewPlaintextCache() *PlaintextCache {
	return &PlaintextCache{slots: make(map[string]*plaintextSlot)}
}

// Put stores plaintext under recoveryID for at most PlaintextCacheTTL.
// The caller's plaintext slice is copied; the caller remains responsible
// for wiping its own copy once it no longer needs it directly.
func (c *PlaintextCache) Put(recoveryID string, plaintext []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[recoveryID] = &plaintextSlot{
		buf:       scopedkey.New(plaintext),
		expiresAt: time.Now().Add(PlaintextCacheTTL),
	}
}

// Take releases the cached plaintext for recoveryID exactly once: it
// returns a copy and destroys the cache entry regardless of outcome. A
// second call, or a call after the TTL has elapsed, returns ok=false.
func (c *PlaintextCache) Take(recoveryID string) (plaintext []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, exists := c.slots[recoveryID]
	if !exists {
		return nil, false
	}
	delete(c.slots, recoveryID)

	if time.Now().After(slot.expiresAt) {
		slot.buf.Release()
		return nil, false
	}

	out := append([]byte(nil), slot.buf.Bytes()...)
	slot.buf.Release()
	return out, true
}

// sweepExpired releases (without returning) any slots past their TTL.
// Exposed for a background sweeper; Take already self-cleans lazily.
func (c *PlaintextCache) sweepExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	swept := 0
	for id, slot := range c.slots {
		if now.After(slot.expiresAt) {
			slot.buf.Release()
			delete(c.slots, id)
			swept++
		}
	}
	return swept
}
