package asynchook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unkn0wn-root/shelfcache"
)

type countHooks struct {
	shelfcache.NopHooks
	mu      sync.Mutex
	evicted int
	block   chan struct{}
}

func (c *countHooks) QuotaEvicted(_ string, _, n int) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.evicted += n
	c.mu.Unlock()
}

func TestDeliversQueuedEventsOnClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.QuotaEvicted("search", 1000, 100)
	}
	h.Close()
	assert.Equal(t, 1000, inner.evicted)
	assert.Zero(t, h.Dropped())

	// after close events are dropped, not panicking on a closed channel
	h.QuotaEvicted("search", 1000, 100)
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event held by the worker, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		h.QuotaEvicted("search", 10, 1)
	}
	close(inner.block)
	h.Close()

	assert.Equal(t, uint64(5), uint64(inner.evicted)+h.Dropped())
	assert.GreaterOrEqual(t, h.Dropped(), uint64(3))
}
