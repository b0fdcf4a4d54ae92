package cache_test

import (
	"testing"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	A uint32
	B uint32
}

func TestReadModifyRoundTrip(t *testing.T) {
	device := block.NewMemDevice(make([]byte, block.BlockSize*2))
	c := cache.New()

	h := c.Get(0, device)
	cache.Modify(h, 16, func(p *pair) struct{} {
		p.A = 7
		p.B = 42
		return struct{}{}
	})
	got := cache.Read(h, 16, func(p *pair) pair { return *p })
	assert.Equal(t, pair{A: 7, B: 42}, got)
	h.Release()
}

func TestSyncAllWritesDirtyEntries(t *testing.T) {
	storage := make([]byte, block.BlockSize*2)
	device := block.NewMemDevice(storage)
	c := cache.New()

	h := c.Get(0, device)
	cache.Modify(h, 0, func(p *pair) struct{} {
		p.A, p.B = 1, 2
		return struct{}{}
	})
	h.Release()
	c.SyncAll()

	fresh := cache.New()
	h2 := fresh.Get(0, device)
	got := cache.Read(h2, 0, func(p *pair) pair { return *p })
	assert.Equal(t, pair{A: 1, B: 2}, got)
}

func TestEvictsEntryWithNoExternalHandles(t *testing.T) {
	device := block.NewMemDevice(make([]byte, block.BlockSize*(cache.Capacity+1)))
	c := cache.New()

	for i := 0; i < cache.Capacity; i++ {
		h := c.Get(uint64(i), device)
		h.Release()
	}
	// All Capacity entries are now unpinned; fetching one more must evict
	// rather than panic.
	require.NotPanics(t, func() {
		h := c.Get(uint64(cache.Capacity), device)
		h.Release()
	})
}

func TestExhaustionPanicsWhenEveryEntryPinned(t *testing.T) {
	device := block.NewMemDevice(make([]byte, block.BlockSize*(cache.Capacity+1)))
	c := cache.New()

	handles := make([]*cache.Handle, 0, cache.Capacity)
	for i := 0; i < cache.Capacity; i++ {
		handles = append(handles, c.Get(uint64(i), device))
	}
	assert.Panics(t, func() {
		c.Get(uint64(cache.Capacity), device)
	})
	for _, h := range handles {
		h.Release()
	}
}
