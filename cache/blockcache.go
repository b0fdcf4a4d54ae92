// Package cache implements the fixed-capacity block cache of spec §4.1: a
// pool of at most Capacity in-memory block buffers, keyed by (device, block
// id), with dirty tracking and write-back on eviction. It is the only
// component in the core that ever issues device I/O — every other package
// reaches the disk through a *cache.Cache.
package cache

import (
	"bytes"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/go-easyfs/easyfs/block"
	fserrors "github.com/go-easyfs/easyfs/errors"
	"github.com/noxer/bytewriter"
)

// Capacity is the maximum number of resident cache entries (spec §4.1:
// BLOCK_CACHE_SIZE = 16).
const Capacity = 16

type entry struct {
	blockID  uint64
	device   block.Device
	buffer   [block.BlockSize]byte
	dirty    bool
	mu       sync.Mutex
	refCount int32
}

// Cache is the global block cache. The zero value is not usable; use New.
type Cache struct {
	mu      sync.Mutex
	entries []*entry
}

// New creates an empty block cache.
func New() *Cache {
	return &Cache{}
}

// Handle is a shared reference to a cached block's buffer. Callers must call
// Release when finished so the entry becomes eligible for eviction again.
type Handle struct {
	entry *entry
}

// Get returns a handle to the cached buffer for blockID on device, loading
// it from the device on a miss. If the cache is full, it evicts an entry
// whose reference count has dropped to 1 (no outstanding external handles),
// flushing it first if dirty. If every entry is pinned, Get fails fatally:
// the core has genuinely run out of cache (spec §4.1, §7).
func (c *Cache) Get(blockID uint64, device block.Device) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.blockID == blockID && e.device == device {
			atomic.AddInt32(&e.refCount, 1)
			return &Handle{entry: e}
		}
	}

	if len(c.entries) >= Capacity {
		victim := -1
		for i, e := range c.entries {
			if atomic.LoadInt32(&e.refCount) == 1 {
				victim = i
				break
			}
		}
		if victim == -1 {
			fserrors.Fatal(fserrors.ErrCacheExhausted.WithMessage("no evictable entry"))
		}
		c.syncEntry(c.entries[victim])
		c.entries = append(c.entries[:victim], c.entries[victim+1:]...)
	}

	e := &entry{blockID: blockID, device: device, refCount: 2}
	if err := device.ReadBlock(blockID, e.buffer[:]); err != nil {
		fserrors.Fatal(err)
	}
	c.entries = append(c.entries, e)
	return &Handle{entry: e}
}

// Release drops the caller's hold on h. After the last external release, the
// entry is eligible for eviction but stays resident (and readable) until
// something evicts it.
func (h *Handle) Release() {
	atomic.AddInt32(&h.entry.refCount, -1)
}

// SyncAll writes back every dirty resident entry. It is best-effort: it does
// not clear cache residency, only the dirty flag (spec §4.1, §7).
func (c *Cache) SyncAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.syncEntry(e)
	}
}

func (c *Cache) syncEntry(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return
	}
	if err := e.device.WriteBlock(e.blockID, e.buffer[:]); err != nil {
		fserrors.Fatal(err)
	}
	e.dirty = false
}

func typeSize[T any]() int {
	var zero T
	return binary.Size(&zero)
}

func checkOffset(offset, size int) {
	if offset < 0 || offset+size > block.BlockSize {
		fserrors.Fatal(fserrors.ErrArgumentOutOfRange.WithMessage("offset + sizeof(T) exceeds block size"))
	}
}

// Read decodes a T from h's buffer at offset and hands it, read-only, to f.
// It is the only legal way to reinterpret the cached bytes as a typed value
// (spec §4.1's read<T> contract); offset+sizeof(T) must not exceed BlockSize.
func Read[T any, V any](h *Handle, offset int, f func(*T) V) V {
	size := typeSize[T]()
	checkOffset(offset, size)

	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()

	var value T
	if err := binary.Read(bytes.NewReader(h.entry.buffer[offset:offset+size]), binary.LittleEndian, &value); err != nil {
		fserrors.Fatal(err)
	}
	return f(&value)
}

// Modify decodes a T from h's buffer at offset, hands it to f for mutation,
// re-serializes it back into the buffer, and marks the entry dirty (spec
// §4.1's modify<T> contract).
func Modify[T any, V any](h *Handle, offset int, f func(*T) V) V {
	size := typeSize[T]()
	checkOffset(offset, size)

	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()

	span := h.entry.buffer[offset : offset+size]
	var value T
	if err := binary.Read(bytes.NewReader(span), binary.LittleEndian, &value); err != nil {
		fserrors.Fatal(err)
	}
	result := f(&value)

	writer := bytewriter.New(span)
	if err := binary.Write(writer, binary.LittleEndian, &value); err != nil {
		fserrors.Fatal(err)
	}
	h.entry.dirty = true
	return result
}
