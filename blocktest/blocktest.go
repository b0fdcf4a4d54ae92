// Package blocktest provides the in-memory device/cache fixtures other
// packages' tests build on, mirroring the teacher's testing package
// (CreateRandomImage / CreateDefaultCache): instead of wiring fetch/flush
// callbacks around a byte slice, it hands back this module's own
// block.Device and cache.Cache types directly, since those already satisfy
// the same "backed by a plain byte slice" contract.
package blocktest

import (
	"crypto/rand"
	"testing"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	"github.com/go-easyfs/easyfs/fsys"
	"github.com/stretchr/testify/require"
)

// RandomBytes returns n bytes of cryptographically random data, failing t
// if the system RNG is unavailable.
func RandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

// NewMemCache builds a totalBlocks-block in-memory device plus a fresh
// cache wired on top of it, zero-filled unless backingData is given (it
// must be exactly totalBlocks*block.BlockSize bytes long).
func NewMemCache(t *testing.T, totalBlocks uint32, backingData []byte) (block.Device, *cache.Cache) {
	t.Helper()
	size := block.BlockSize * uint64(totalBlocks)
	if backingData == nil {
		backingData = make([]byte, size)
	}
	require.Len(t, backingData, int(size))
	return block.NewMemDevice(backingData), cache.New()
}

// NewFormattedFS formats a fresh totalBlocks-block image with the given
// inode bitmap size and returns the resulting FileSystem alongside its
// device, ready for fsys/vfs tests that don't need to control the image's
// raw bytes directly.
func NewFormattedFS(t *testing.T, totalBlocks, inodeBitmapBlocks uint32) (*fsys.FileSystem, block.Device) {
	t.Helper()
	device, c := NewMemCache(t, totalBlocks, nil)
	return fsys.Create(device, c, totalBlocks, inodeBitmapBlocks), device
}
