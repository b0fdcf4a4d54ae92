// Package fsys mounts a layout.SuperBlock-described region layout on a
// block.Device and exposes inode/data-block allocation to the vfs layer
// (spec §4.4). It is grounded on original_source/easy-fs/src/efs.rs's
// EasyFileSystem::create/open/alloc_inode/alloc_data/dealloc_data, which this
// package ports field-for-field.
package fsys

import (
	"fmt"

	"github.com/go-easyfs/easyfs/bitmap"
	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	fserrors "github.com/go-easyfs/easyfs/errors"
	"github.com/go-easyfs/easyfs/layout"
	"github.com/hashicorp/go-multierror"
)

// dataBitsPerBlock is the number of data blocks one data-bitmap block can
// track (spec §4.4's 4096 figure).
const dataBitsPerBlock = 4096

// FileSystem is a mounted instance: region boundaries plus the two bitmap
// allocators that carve inode ids and data-block ids out of their regions.
type FileSystem struct {
	Device block.Device
	Cache  *cache.Cache

	InodeBitmap bitmap.Allocator
	DataBitmap  bitmap.Allocator

	InodeAreaStartBlock uint32
	DataAreaStartBlock  uint32
}

// Create formats device with a fresh filesystem of totalBlocks blocks, with
// inodeBitmapBlocks blocks reserved for the inode bitmap. It zeroes every
// block, writes the super-block, and allocates inode 0 as the root
// directory. Returns the mounted FileSystem.
func Create(device block.Device, c *cache.Cache, totalBlocks, inodeBitmapBlocks uint32) *FileSystem {
	inodeBitmapAllocator := bitmap.New(1, uint64(inodeBitmapBlocks))
	inodeNum := uint32(inodeBitmapAllocator.Maximum())
	inodeAreaBlocks := (inodeNum*layout.DiskInodeSize + block.BlockSize - 1) / block.BlockSize

	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := (dataTotalBlocks + dataBitsPerBlock) / (dataBitsPerBlock + 1)
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	fs := &FileSystem{
		Device:              device,
		Cache:               c,
		InodeBitmap:         inodeBitmapAllocator,
		DataBitmap:          bitmap.New(uint64(1+inodeBitmapBlocks+inodeAreaBlocks), uint64(dataBitmapBlocks)),
		InodeAreaStartBlock: 1 + inodeBitmapBlocks,
		DataAreaStartBlock:  1 + inodeTotalBlocks + dataBitmapBlocks,
	}

	for i := uint32(0); i < totalBlocks; i++ {
		h := c.Get(uint64(i), device)
		cache.Modify(h, 0, func(b *layout.DataBlock) struct{} {
			for j := range b {
				b[j] = 0
			}
			return struct{}{}
		})
		h.Release()
	}

	h := c.Get(0, device)
	cache.Modify(h, 0, func(sb *layout.SuperBlock) struct{} {
		sb.Initialize(totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks)
		return struct{}{}
	})
	h.Release()

	rootID := fs.AllocInode()
	if rootID != 0 {
		fserrors.Fatal(fserrors.ErrFileSystemCorrupted.WithMessage("root inode did not receive id 0"))
	}
	blockID, offset := fs.GetDiskInodePos(rootID)
	hRoot := c.Get(uint64(blockID), device)
	cache.Modify(hRoot, offset, func(inode *layout.DiskInode) struct{} {
		inode.Initialize(layout.DiskInodeDirectory)
		inode.InodeStat.Ino = uint64(rootID)
		inode.InodeStat.Mode = layout.StatModeDir
		inode.InodeStat.IncreasePlink()
		return struct{}{}
	})
	hRoot.Release()

	c.SyncAll()
	return fs
}

// Open reads and validates the super-block of an existing filesystem and
// rebuilds region boundaries from it.
func Open(device block.Device, c *cache.Cache) (*FileSystem, error) {
	h := c.Get(0, device)
	defer h.Release()

	var result *multierror.Error
	var fs *FileSystem
	cache.Read(h, 0, func(sb *layout.SuperBlock) struct{} {
		if !sb.IsValid() {
			result = multierror.Append(result, fserrors.ErrInvalidFileSystem.WithMessage(
				fmt.Sprintf("bad magic %#x", sb.Magic)))
			return struct{}{}
		}
		inodeTotalBlocks := sb.InodeBitmapBlocks + sb.InodeAreaBlocks
		expectedDataTotal := sb.DataBitmapBlocks + sb.DataAreaBlocks
		if 1+inodeTotalBlocks+expectedDataTotal != sb.TotalBlocks {
			result = multierror.Append(result, fserrors.ErrFileSystemCorrupted.WithMessage(
				"region sizes do not sum to total_blocks"))
		}

		fs = &FileSystem{
			Device:              device,
			Cache:               c,
			InodeBitmap:         bitmap.New(1, uint64(sb.InodeBitmapBlocks)),
			DataBitmap:          bitmap.New(uint64(1+inodeTotalBlocks), uint64(sb.DataBitmapBlocks)),
			InodeAreaStartBlock: 1 + sb.InodeBitmapBlocks,
			DataAreaStartBlock:  1 + inodeTotalBlocks + sb.DataBitmapBlocks,
		}
		return struct{}{}
	})

	if result.ErrorOrNil() != nil {
		return nil, result
	}
	return fs, nil
}

// GetDiskInodePos resolves inodeID to its (block id, byte offset within
// that block).
func (fs *FileSystem) GetDiskInodePos(inodeID uint32) (uint32, int) {
	blockID := fs.InodeAreaStartBlock + inodeID/layout.InodesPerBlock
	offset := int(inodeID%layout.InodesPerBlock) * layout.DiskInodeSize
	return blockID, offset
}

// GetDataBlockID translates a data-bitmap-relative block index into an
// absolute device block id.
func (fs *FileSystem) GetDataBlockID(dataBlockID uint32) uint32 {
	return fs.DataAreaStartBlock + dataBlockID
}

// AllocInode reserves the next free inode id.
func (fs *FileSystem) AllocInode() uint32 {
	id, ok := fs.InodeBitmap.Alloc(fs.Cache, fs.Device)
	if !ok {
		fserrors.Fatal(fserrors.ErrNoSpaceOnDevice.WithMessage("inode bitmap exhausted"))
	}
	return uint32(id)
}

// AllocData reserves the next free data block, returning its absolute
// device block id.
func (fs *FileSystem) AllocData() uint32 {
	id, ok := fs.DataBitmap.Alloc(fs.Cache, fs.Device)
	if !ok {
		fserrors.Fatal(fserrors.ErrNoSpaceOnDevice.WithMessage("data bitmap exhausted"))
	}
	return uint32(id) + fs.DataAreaStartBlock
}

// DeallocData zeroes blockID's contents and frees its data-bitmap bit.
func (fs *FileSystem) DeallocData(blockID uint32) {
	h := fs.Cache.Get(uint64(blockID), fs.Device)
	cache.Modify(h, 0, func(b *layout.DataBlock) struct{} {
		for j := range b {
			b[j] = 0
		}
		return struct{}{}
	})
	h.Release()
	fs.DataBitmap.Dealloc(fs.Cache, fs.Device, uint64(blockID-fs.DataAreaStartBlock))
}
