package blocktest_test

import (
	"testing"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/blocktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemCacheZeroFilled(t *testing.T) {
	device, c := blocktest.NewMemCache(t, 4, nil)
	h := c.Get(0, device)
	defer h.Release()
	buf := make([]byte, block.BlockSize)
	require.NoError(t, device.ReadBlock(0, buf))
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestNewFormattedFSLaysOutRegions(t *testing.T) {
	fs, device := blocktest.NewFormattedFS(t, 4096, 1)
	assert.NotZero(t, fs.DataAreaStartBlock)
	assert.EqualValues(t, 4096, device.TotalBlocks())
}

func TestRandomBytesLength(t *testing.T) {
	data := blocktest.RandomBytes(t, 64)
	assert.Len(t, data, 64)
}
