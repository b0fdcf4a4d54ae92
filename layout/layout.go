// Package layout defines the on-disk records of the easyfs format: the
// superblock, the multi-level inode index tree, and directory entries (spec
// §3). It is grounded directly on original_source/easy-fs/src/layout.rs; the
// index-tree arithmetic (IncreaseSize/ClearSize/GetBlockID) is a line-by-line
// port of that file's direct/indirect1/indirect2 walk, since the spec
// mandates the exact same tree shape and byte layout.
package layout

import (
	"bytes"
	"encoding/binary"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	fserrors "github.com/go-easyfs/easyfs/errors"
)

// EFSMagic identifies a valid superblock (spec §3).
const EFSMagic uint32 = 0x3b800001

// Index-tree fan-out constants (spec §3).
const (
	InodeDirectCount    = 8
	InodeIndirect1Count = block.BlockSize / 4   // 128
	InodeIndirect2Count = InodeIndirect1Count * InodeIndirect1Count // 16384

	DirectBound    = InodeDirectCount
	Indirect1Bound = DirectBound + InodeIndirect1Count // 136
)

// DiskInodeSize is the on-disk size of a DiskInode record in bytes, fixed so
// that InodesPerBlock inodes pack exactly into one block.
const DiskInodeSize = 128

// InodesPerBlock is the number of DiskInode records packed into one block of
// the inode area.
const InodesPerBlock = block.BlockSize / DiskInodeSize

// IndirectBlock is the in-memory shape of one indirect index block: 128
// block ids.
type IndirectBlock [InodeIndirect1Count]uint32

// DataBlock is the in-memory shape of one raw data block.
type DataBlock [block.BlockSize]byte

// SuperBlock is the single block at device offset 0 describing the layout of
// every other region (spec §3).
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

// Initialize stamps s with the magic number and the given region sizes.
func (s *SuperBlock) Initialize(totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32) {
	*s = SuperBlock{
		Magic:             EFSMagic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
}

// IsValid reports whether s carries the easyfs magic number.
func (s *SuperBlock) IsValid() bool {
	return s.Magic == EFSMagic
}

// StatMode is the mode-bits portion of Stat (spec §3's stat record).
type StatMode uint32

const (
	StatModeNull StatMode = 0
	StatModeDir  StatMode = 0o040000
	StatModeFile StatMode = 0o100000
)

// Stat is the fixed-size metadata record embedded in every DiskInode.
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  StatMode
	Nlink uint32
	Pad   [7]uint64
}

// IncreasePlink records one more hard link to the inode.
func (s *Stat) IncreasePlink() {
	s.Nlink++
}

// DecreasePlink records one fewer hard link. It floors at zero: an inode
// with no surviving links is the caller's signal to reclaim it, not Stat's
// job to detect.
func (s *Stat) DecreasePlink() {
	if s.Nlink > 0 {
		s.Nlink--
	}
}

// DiskInodeType distinguishes a regular file from a directory.
type DiskInodeType uint32

const (
	DiskInodeFile DiskInodeType = iota
	DiskInodeDirectory
)

// DiskInode is the fixed-size (DiskInodeSize-byte) on-disk inode record: a
// byte size, an 8-entry direct index, one indirect1 block id, one indirect2
// block id, embedded Stat metadata, and a type tag.
type DiskInode struct {
	Size      uint32
	Direct    [InodeDirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
	InodeStat Stat
	Type      DiskInodeType
}

// Initialize resets d to an empty inode of the given type.
func (d *DiskInode) Initialize(type_ DiskInodeType) {
	*d = DiskInode{Type: type_}
}

func (d *DiskInode) IsDir() bool  { return d.Type == DiskInodeDirectory }
func (d *DiskInode) IsFile() bool { return d.Type == DiskInodeFile }

// DataBlocks returns the number of data blocks d's current size occupies,
// excluding index blocks.
func (d *DiskInode) DataBlocks() uint32 {
	return dataBlocksForSize(d.Size)
}

func dataBlocksForSize(size uint32) uint32 {
	return (size + block.BlockSize - 1) / block.BlockSize
}

// TotalBlocksForSize returns the number of blocks (data plus index blocks)
// a file of the given byte size occupies.
func TotalBlocksForSize(size uint32) uint32 {
	dataBlocks := dataBlocksForSize(size)
	total := dataBlocks
	if dataBlocks > InodeDirectCount {
		total++ // the indirect1 block itself
	}
	if dataBlocks > Indirect1Bound {
		total++ // the indirect2 block itself
		total += (dataBlocks - Indirect1Bound + InodeIndirect1Count - 1) / InodeIndirect1Count
	}
	return total
}

// BlocksNumNeeded returns how many additional blocks must be allocated to
// grow d to newSize.
func (d *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	return TotalBlocksForSize(newSize) - TotalBlocksForSize(d.Size)
}

// GetBlockID resolves the innerID'th data block of d to a device block id,
// walking direct, then indirect1, then indirect2 as innerID's range demands.
func (d *DiskInode) GetBlockID(innerID uint32, c *cache.Cache, device block.Device) uint32 {
	switch {
	case innerID < DirectBound:
		return d.Direct[innerID]
	case innerID < Indirect1Bound:
		h := c.Get(uint64(d.Indirect1), device)
		defer h.Release()
		idx := innerID - DirectBound
		return cache.Read(h, 0, func(b *IndirectBlock) uint32 { return b[idx] })
	default:
		idx := innerID - Indirect1Bound
		h1 := c.Get(uint64(d.Indirect2), device)
		indirect1ID := cache.Read(h1, 0, func(b *IndirectBlock) uint32 { return b[idx/InodeIndirect1Count] })
		h1.Release()

		h2 := c.Get(uint64(indirect1ID), device)
		defer h2.Release()
		return cache.Read(h2, 0, func(b *IndirectBlock) uint32 { return b[idx%InodeIndirect1Count] })
	}
}

// IncreaseSize grows d to newSize, consuming newBlocks (block ids
// pre-allocated by the caller, in the exact order they'll be wired into the
// tree) to populate direct entries, the indirect1 block, the indirect2
// block, and the indirect1 blocks indirect2 points to, as needed.
func (d *DiskInode) IncreaseSize(newSize uint32, newBlocks []uint32, c *cache.Cache, device block.Device) {
	next := 0
	take := func() uint32 {
		v := newBlocks[next]
		next++
		return v
	}

	current := d.DataBlocks()
	d.Size = newSize
	total := d.DataBlocks()

	for current < min32(total, InodeDirectCount) {
		d.Direct[current] = take()
		current++
	}
	if total <= InodeDirectCount {
		return
	}
	if current == InodeDirectCount {
		d.Indirect1 = take()
	}
	current -= InodeDirectCount
	total -= InodeDirectCount

	h := c.Get(uint64(d.Indirect1), device)
	cache.Modify(h, 0, func(b *IndirectBlock) struct{} {
		for current < min32(total, InodeIndirect1Count) {
			b[current] = take()
			current++
		}
		return struct{}{}
	})
	h.Release()
	if total <= InodeIndirect1Count {
		return
	}
	if current == InodeIndirect1Count {
		d.Indirect2 = take()
	}
	current -= InodeIndirect1Count
	total -= InodeIndirect1Count

	a0, b0 := current/InodeIndirect1Count, current%InodeIndirect1Count
	a1, b1 := total/InodeIndirect1Count, total%InodeIndirect1Count

	h2 := c.Get(uint64(d.Indirect2), device)
	cache.Modify(h2, 0, func(indirect2 *IndirectBlock) struct{} {
		for a0 < a1 || (a0 == a1 && b0 < b1) {
			if b0 == 0 {
				indirect2[a0] = take()
			}
			hInner := c.Get(uint64(indirect2[a0]), device)
			cache.Modify(hInner, 0, func(indirect1 *IndirectBlock) struct{} {
				indirect1[b0] = take()
				return struct{}{}
			})
			hInner.Release()

			b0++
			if b0 == InodeIndirect1Count {
				b0 = 0
				a0++
			}
		}
		return struct{}{}
	})
	h2.Release()
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// ClearSize truncates d to zero size, returning every block id it held (data
// and index blocks alike, in the same order IncreaseSize would have
// assigned them) so the caller can deallocate them.
func (d *DiskInode) ClearSize(c *cache.Cache, device block.Device) []uint32 {
	var freed []uint32

	dataBlocks := d.DataBlocks()
	d.Size = 0
	current := uint32(0)

	for current < min32(dataBlocks, InodeDirectCount) {
		freed = append(freed, d.Direct[current])
		d.Direct[current] = 0
		current++
	}
	if dataBlocks <= InodeDirectCount {
		return freed
	}
	freed = append(freed, d.Indirect1)
	dataBlocks -= InodeDirectCount
	current = 0

	h := c.Get(uint64(d.Indirect1), device)
	cache.Modify(h, 0, func(b *IndirectBlock) struct{} {
		for current < min32(dataBlocks, InodeIndirect1Count) {
			freed = append(freed, b[current])
			current++
		}
		return struct{}{}
	})
	h.Release()
	d.Indirect1 = 0

	if dataBlocks <= InodeIndirect1Count {
		return freed
	}
	freed = append(freed, d.Indirect2)
	dataBlocks -= InodeIndirect1Count

	a1, b1 := dataBlocks/InodeIndirect1Count, dataBlocks%InodeIndirect1Count

	h2 := c.Get(uint64(d.Indirect2), device)
	cache.Modify(h2, 0, func(indirect2 *IndirectBlock) struct{} {
		for i := uint32(0); i < a1; i++ {
			freed = append(freed, indirect2[i])
			hInner := c.Get(uint64(indirect2[i]), device)
			cache.Read(hInner, 0, func(indirect1 *IndirectBlock) struct{} {
				freed = append(freed, indirect1[:]...)
				return struct{}{}
			})
			hInner.Release()
		}
		if b1 > 0 {
			freed = append(freed, indirect2[a1])
			hInner := c.Get(uint64(indirect2[a1]), device)
			cache.Read(hInner, 0, func(indirect1 *IndirectBlock) struct{} {
				freed = append(freed, indirect1[:b1]...)
				return struct{}{}
			})
			hInner.Release()
		}
		return struct{}{}
	})
	h2.Release()
	d.Indirect2 = 0

	return freed
}

// ReadAt copies min(len(buf), d.Size-offset) bytes starting at offset into
// buf, returning the number of bytes copied.
func (d *DiskInode) ReadAt(offset int, buf []byte, c *cache.Cache, device block.Device) int {
	end := offset + len(buf)
	if end > int(d.Size) {
		end = int(d.Size)
	}
	if offset >= end {
		return 0
	}

	start := offset
	read := 0
	startBlock := start / block.BlockSize
	for {
		endCurrentBlock := (start/block.BlockSize + 1) * block.BlockSize
		if endCurrentBlock > end {
			endCurrentBlock = end
		}
		chunkLen := endCurrentBlock - start

		blockID := d.GetBlockID(uint32(startBlock), c, device)
		h := c.Get(uint64(blockID), device)
		cache.Read(h, 0, func(data *DataBlock) struct{} {
			copy(buf[read:read+chunkLen], data[start%block.BlockSize:start%block.BlockSize+chunkLen])
			return struct{}{}
		})
		h.Release()

		read += chunkLen
		if endCurrentBlock == end {
			break
		}
		startBlock++
		start = endCurrentBlock
	}
	return read
}

// WriteAt copies buf into d's data blocks starting at offset. The caller
// must already have grown d (via IncreaseSize) so every block touched
// exists; WriteAt never changes d.Size.
func (d *DiskInode) WriteAt(offset int, buf []byte, c *cache.Cache, device block.Device) int {
	end := offset + len(buf)
	if end > int(d.Size) {
		end = int(d.Size)
	}
	if offset >= end {
		return 0
	}

	start := offset
	written := 0
	startBlock := start / block.BlockSize
	for {
		endCurrentBlock := (start/block.BlockSize + 1) * block.BlockSize
		if endCurrentBlock > end {
			endCurrentBlock = end
		}
		chunkLen := endCurrentBlock - start

		blockID := d.GetBlockID(uint32(startBlock), c, device)
		h := c.Get(uint64(blockID), device)
		cache.Modify(h, 0, func(data *DataBlock) struct{} {
			copy(data[start%block.BlockSize:start%block.BlockSize+chunkLen], buf[written:written+chunkLen])
			return struct{}{}
		})
		h.Release()

		written += chunkLen
		if endCurrentBlock == end {
			break
		}
		startBlock++
		start = endCurrentBlock
	}
	return written
}

// Directory entry format (spec §3): a 28-byte NUL-padded name plus a 4-byte
// inode id, 32 bytes total.
const (
	NameBytes    = 28
	DirEntrySize = 32
)

// DirEntry is one fixed-size directory entry.
type DirEntry struct {
	NameBuf [NameBytes]byte
	InodeID uint32
}

// EmptyDirEntry returns the zero entry used both to pad a new directory
// block and as the unlink tombstone.
func EmptyDirEntry() DirEntry {
	return DirEntry{}
}

// NewDirEntry builds an entry for name/inodeID. name must fit in
// NameBytes-1 bytes (room for at least an implicit NUL terminator).
func NewDirEntry(name string, inodeID uint32) (DirEntry, error) {
	if len(name) == 0 || len(name) >= NameBytes {
		return DirEntry{}, fserrors.ErrNameTooLong.WithMessage(name)
	}
	var e DirEntry
	copy(e.NameBuf[:], name)
	e.InodeID = inodeID
	return e, nil
}

// Name returns the entry's NUL-terminated name.
func (e DirEntry) Name() string {
	n := bytes.IndexByte(e.NameBuf[:], 0)
	if n < 0 {
		n = len(e.NameBuf)
	}
	return string(e.NameBuf[:n])
}

// MarshalBinary encodes e as its exact 32-byte on-disk form, for callers
// (the vfs directory-entry scan) that read/write directory content through
// DiskInode.ReadAt/WriteAt rather than through cache.Read/cache.Modify.
func (e *DirEntry) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a DirEntrySize-byte record produced by MarshalBinary.
func (e *DirEntry) UnmarshalBinary(data []byte) error {
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, e)
}

// IsEmpty reports whether e is an unused slot or an unlink tombstone. Both
// carry an empty name; a real entry's name is never empty (NewDirEntry
// rejects it), so this is an unambiguous test even though a tombstone's
// zeroed InodeID equals the root directory's id 0.
func (e DirEntry) IsEmpty() bool {
	return e.Name() == ""
}
