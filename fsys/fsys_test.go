package fsys_test

import (
	"testing"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	"github.com/go-easyfs/easyfs/fsys"
	"github.com/go-easyfs/easyfs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImage(t *testing.T, totalBlocks uint32) block.Device {
	t.Helper()
	return block.NewMemDevice(make([]byte, block.BlockSize*uint64(totalBlocks)))
}

func TestCreateAssignsRootInodeZero(t *testing.T) {
	device := newImage(t, 4096)
	c := cache.New()

	fs := fsys.Create(device, c, 4096, 1)

	blockID, offset := fs.GetDiskInodePos(0)
	h := c.Get(uint64(blockID), device)
	defer h.Release()

	inode := cache.Read(h, offset, func(d *layout.DiskInode) layout.DiskInode { return *d })
	assert.True(t, inode.IsDir())
	assert.EqualValues(t, 0, inode.Size)
}

func TestOpenRebuildsRegionBoundaries(t *testing.T) {
	device := newImage(t, 4096)
	c := cache.New()
	created := fsys.Create(device, c, 4096, 1)

	reopened, err := fsys.Open(device, cache.New())
	require.NoError(t, err)
	assert.Equal(t, created.InodeAreaStartBlock, reopened.InodeAreaStartBlock)
	assert.Equal(t, created.DataAreaStartBlock, reopened.DataAreaStartBlock)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	device := newImage(t, 16)
	c := cache.New()
	// Never formatted: superblock is all zero, magic is wrong.
	_, err := fsys.Open(device, c)
	assert.Error(t, err)
}

func TestAllocInodeIsSequential(t *testing.T) {
	device := newImage(t, 4096)
	c := cache.New()
	fs := fsys.Create(device, c, 4096, 1)

	// Inode 0 was consumed by the root directory at Create time.
	assert.EqualValues(t, 1, fs.AllocInode())
	assert.EqualValues(t, 2, fs.AllocInode())
	assert.EqualValues(t, 3, fs.AllocInode())
}

func TestAllocDataDeallocDataInvolution(t *testing.T) {
	device := newImage(t, 4096)
	c := cache.New()
	fs := fsys.Create(device, c, 4096, 1)

	id := fs.AllocData()
	fs.DeallocData(id)
	again := fs.AllocData()
	assert.Equal(t, id, again)
}

func TestRegionSizesSumToTotalBlocks(t *testing.T) {
	device := newImage(t, 8192)
	c := cache.New()
	fs := fsys.Create(device, c, 8192, 2)

	h := c.Get(0, device)
	defer h.Release()
	sb := cache.Read(h, 0, func(s *layout.SuperBlock) layout.SuperBlock { return *s })

	sum := uint32(1) + sb.InodeBitmapBlocks + sb.InodeAreaBlocks + sb.DataBitmapBlocks + sb.DataAreaBlocks
	assert.Equal(t, sb.TotalBlocks, sum)
}
