package layout_test

import (
	"testing"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	"github.com/go-easyfs/easyfs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperBlockValidity(t *testing.T) {
	var sb layout.SuperBlock
	assert.False(t, sb.IsValid())

	sb.Initialize(4096, 1, 10, 1, 4083)
	assert.True(t, sb.IsValid())
	assert.EqualValues(t, 4096, sb.TotalBlocks)
}

func TestStatPlinkFloorsAtZero(t *testing.T) {
	var s layout.Stat
	s.DecreasePlink()
	assert.EqualValues(t, 0, s.Nlink)

	s.IncreasePlink()
	s.IncreasePlink()
	assert.EqualValues(t, 2, s.Nlink)
	s.DecreasePlink()
	assert.EqualValues(t, 1, s.Nlink)
}

func TestDirEntryNameRoundTrip(t *testing.T) {
	e, err := layout.NewDirEntry("hello.txt", 7)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", e.Name())
	assert.EqualValues(t, 7, e.InodeID)
	assert.False(t, e.IsEmpty())

	assert.True(t, layout.EmptyDirEntry().IsEmpty())
}

func TestDirEntryNameTooLongRejected(t *testing.T) {
	long := make([]byte, layout.NameBytes)
	for i := range long {
		long[i] = 'a'
	}
	_, err := layout.NewDirEntry(string(long), 1)
	assert.Error(t, err)
}

func TestTotalBlocksForSizeCrossesDirectBoundary(t *testing.T) {
	// Exactly INODE_DIRECT_COUNT data blocks needs no index block yet.
	assert.EqualValues(t, layout.InodeDirectCount, layout.TotalBlocksForSize(layout.InodeDirectCount*block.BlockSize))
	// One more data block forces an indirect1 block into existence.
	assert.EqualValues(t, layout.InodeDirectCount+2, layout.TotalBlocksForSize((layout.InodeDirectCount+1)*block.BlockSize))
}

func newDevice(totalBlocks uint64) (block.Device, *cache.Cache) {
	return block.NewMemDevice(make([]byte, block.BlockSize*totalBlocks)), cache.New()
}

func TestIncreaseSizeThenClearSizeReturnsAllBlocksOnce(t *testing.T) {
	const dataBlockCount = layout.Indirect1Bound + 300 // forces direct + indirect1 + indirect2 use
	device, c := newDevice(dataBlockCount + 10)

	var inode layout.DiskInode
	inode.Initialize(layout.DiskInodeFile)

	newSize := uint32(dataBlockCount * block.BlockSize)
	needed := inode.BlocksNumNeeded(newSize)
	require.True(t, needed > 0)

	ids := make([]uint32, needed)
	for i := range ids {
		ids[i] = uint32(i + 1) // block 0 reserved, pretend ids 1..needed are freshly allocated
	}
	inode.IncreaseSize(newSize, ids, c, device)
	assert.EqualValues(t, newSize, inode.Size)

	freed := inode.ClearSize(c, device)
	assert.Len(t, freed, len(ids))
	assert.EqualValues(t, 0, inode.Size)
	assert.EqualValues(t, 0, inode.Indirect1)
	assert.EqualValues(t, 0, inode.Indirect2)

	seen := make(map[uint32]bool, len(ids))
	for _, id := range freed {
		assert.False(t, seen[id], "block %d freed twice", id)
		seen[id] = true
	}
}

func TestReadAtWriteAtRoundTrip(t *testing.T) {
	device, c := newDevice(20)

	var inode layout.DiskInode
	inode.Initialize(layout.DiskInodeFile)

	payload := make([]byte, block.BlockSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}

	needed := inode.BlocksNumNeeded(uint32(len(payload)))
	ids := make([]uint32, needed)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	inode.IncreaseSize(uint32(len(payload)), ids, c, device)
	inode.WriteAt(0, payload, c, device)

	readBack := make([]byte, len(payload))
	n := inode.ReadAt(0, readBack, c, device)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)
}

func TestReadAtClampsToSize(t *testing.T) {
	device, c := newDevice(4)
	var inode layout.DiskInode
	inode.Initialize(layout.DiskInodeFile)

	inode.IncreaseSize(10, []uint32{1}, c, device)
	inode.WriteAt(0, []byte("0123456789"), c, device)

	buf := make([]byte, 100)
	n := inode.ReadAt(5, buf, c, device)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("56789"), buf[:5])
}
