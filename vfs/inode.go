// Package vfs implements the in-memory inode handle of spec §4.5: find,
// create, link, unlink, ls, read_at, write_at, clear, stat, built over a
// fsys.FileSystem and cache.Cache. It is grounded on
// original_source/easy-fs/src/vfs.rs, including its lock-ordering discipline
// (§5): every operation holds the filesystem mutex for its duration, except
// Unlink, which drops it across the child inode's Clear and reacquires it
// before rewriting the directory entry.
package vfs

import (
	"fmt"
	"sync"

	"github.com/go-easyfs/easyfs/block"
	"github.com/go-easyfs/easyfs/cache"
	fserrors "github.com/go-easyfs/easyfs/errors"
	"github.com/go-easyfs/easyfs/fsys"
	"github.com/go-easyfs/easyfs/layout"
	"github.com/hashicorp/go-multierror"
)

// FS wraps a mounted fsys.FileSystem with the outer filesystem mutex that
// every vfs.Inode operation acquires before touching the cache (spec §5,
// lock-ordering step 1).
type FS struct {
	mu sync.Mutex
	fs *fsys.FileSystem
}

// NewFS wraps a mounted filesystem for vfs.Inode use.
func NewFS(fs *fsys.FileSystem) *FS {
	return &FS{fs: fs}
}

// Root returns a handle to the root directory inode (inode id 0).
func (w *FS) Root(device block.Device) *Inode {
	w.mu.Lock()
	blockID, offset := w.fs.GetDiskInodePos(0)
	w.mu.Unlock()
	return &Inode{BlockID: blockID, BlockOffset: offset, FS: w, Device: device}
}

// Inode is an in-memory handle resolving to a disk inode by
// (BlockID, BlockOffset) — the address of its backing layout.DiskInode.
type Inode struct {
	BlockID     uint32
	BlockOffset int
	FS          *FS
	Device      block.Device
}

func (i *Inode) readDiskInode(f func(*layout.DiskInode)) {
	h := i.FS.fs.Cache.Get(uint64(i.BlockID), i.Device)
	cache.Read(h, i.BlockOffset, func(d *layout.DiskInode) struct{} {
		f(d)
		return struct{}{}
	})
	h.Release()
}

func (i *Inode) modifyDiskInode(f func(*layout.DiskInode)) {
	h := i.FS.fs.Cache.Get(uint64(i.BlockID), i.Device)
	cache.Modify(h, i.BlockOffset, func(d *layout.DiskInode) struct{} {
		f(d)
		return struct{}{}
	})
	h.Release()
}

func (i *Inode) childAt(inodeID uint32) *Inode {
	blockID, offset := i.FS.fs.GetDiskInodePos(inodeID)
	return &Inode{BlockID: blockID, BlockOffset: offset, FS: i.FS, Device: i.Device}
}

// findDirEntryIndexLocked linearly scans d's directory content for name,
// returning its entry index and inode id. Caller must hold i.FS.mu and d
// must be the disk inode backing i (and must be a directory).
func (i *Inode) findDirEntryIndexLocked(name string, d *layout.DiskInode) (int, uint32, bool) {
	count := int(d.Size) / layout.DirEntrySize
	buf := make([]byte, layout.DirEntrySize)
	var e layout.DirEntry
	for idx := 0; idx < count; idx++ {
		d.ReadAt(idx*layout.DirEntrySize, buf, i.FS.fs.Cache, i.Device)
		if err := e.UnmarshalBinary(buf); err != nil {
			fserrors.Fatal(fserrors.ErrFileSystemCorrupted.WrapError(err))
		}
		if !e.IsEmpty() && e.Name() == name {
			return idx, e.InodeID, true
		}
	}
	return 0, 0, false
}

// appendDirEntryLocked grows the directory i backs by one DirEntrySize
// record and writes entry into the new slot. Caller must hold i.FS.mu.
func (i *Inode) appendDirEntryLocked(entry layout.DirEntry) {
	var oldSize uint32
	i.readDiskInode(func(d *layout.DiskInode) { oldSize = d.Size })

	i.increaseSizeLocked(oldSize + layout.DirEntrySize)

	data, err := entry.MarshalBinary()
	if err != nil {
		fserrors.Fatal(err)
	}
	i.modifyDiskInode(func(d *layout.DiskInode) {
		d.WriteAt(int(oldSize), data, i.FS.fs.Cache, i.Device)
	})
}

// increaseSizeLocked grows i's backing disk inode to newSize, allocating
// whatever additional data/index blocks BlocksNumNeeded calls for. It is a
// no-op if newSize does not exceed the inode's current size. Caller must
// hold i.FS.mu.
func (i *Inode) increaseSizeLocked(newSize uint32) {
	var currentSize, needed uint32
	i.readDiskInode(func(d *layout.DiskInode) {
		currentSize = d.Size
		if newSize > currentSize {
			needed = d.BlocksNumNeeded(newSize)
		}
	})
	if newSize <= currentSize {
		return
	}

	newBlocks := make([]uint32, needed)
	for idx := range newBlocks {
		newBlocks[idx] = i.FS.fs.AllocData()
	}
	i.modifyDiskInode(func(d *layout.DiskInode) {
		d.IncreaseSize(newSize, newBlocks, i.FS.fs.Cache, i.Device)
	})
}

// Find resolves name within the directory i backs, returning a handle to
// the matching entry's inode or nil if no such entry exists.
func (i *Inode) Find(name string) *Inode {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var id uint32
	var found bool
	i.readDiskInode(func(d *layout.DiskInode) {
		_, id, found = i.findDirEntryIndexLocked(name, d)
	})
	if !found {
		return nil
	}
	return i.childAt(id)
}

// Create allocates a new regular-file inode named name within the directory
// i backs. It rejects a name that already has an entry.
func (i *Inode) Create(name string) (*Inode, error) {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var exists bool
	i.readDiskInode(func(d *layout.DiskInode) {
		_, _, exists = i.findDirEntryIndexLocked(name, d)
	})
	if exists {
		return nil, fserrors.ErrExists.WithMessage(name)
	}

	newInodeID := i.FS.fs.AllocInode()
	child := i.childAt(newInodeID)
	child.modifyDiskInode(func(d *layout.DiskInode) {
		d.Initialize(layout.DiskInodeFile)
		d.InodeStat.Ino = uint64(newInodeID)
		d.InodeStat.Mode = layout.StatModeFile
		d.InodeStat.IncreasePlink()
	})

	entry, err := layout.NewDirEntry(name, newInodeID)
	if err != nil {
		return nil, err
	}
	i.appendDirEntryLocked(entry)

	i.FS.fs.Cache.SyncAll()
	return child, nil
}

// Link adds newName as another directory entry pointing at the inode
// oldName already resolves to, incrementing its link count. It rejects
// oldName == newName, a missing oldName, and a newName that already exists.
func (i *Inode) Link(oldName, newName string) error {
	if oldName == newName {
		return fserrors.ErrInvalidArgument.WithMessage("old and new name are identical")
	}

	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var targetID uint32
	var found, dupExists bool
	i.readDiskInode(func(d *layout.DiskInode) {
		_, targetID, found = i.findDirEntryIndexLocked(oldName, d)
		if found {
			_, _, dupExists = i.findDirEntryIndexLocked(newName, d)
		}
	})
	if !found {
		return fserrors.ErrNotFound.WithMessage(oldName)
	}
	if dupExists {
		return fserrors.ErrExists.WithMessage(newName)
	}

	target := i.childAt(targetID)
	target.modifyDiskInode(func(d *layout.DiskInode) {
		d.InodeStat.IncreasePlink()
	})

	entry, err := layout.NewDirEntry(newName, targetID)
	if err != nil {
		return err
	}
	i.appendDirEntryLocked(entry)

	i.FS.fs.Cache.SyncAll()
	return nil
}

// Unlink removes name's directory entry. If the target inode's link count
// reaches zero, its data is freed. Per spec §5/§9, the filesystem mutex is
// dropped across the child's Clear and reacquired before the directory
// entry is rewritten as a tombstone, to avoid re-entrant acquisition from
// Clear's own locking.
func (i *Inode) Unlink(name string) error {
	i.FS.mu.Lock()

	var entryIdx int
	var targetID uint32
	var found bool
	i.readDiskInode(func(d *layout.DiskInode) {
		entryIdx, targetID, found = i.findDirEntryIndexLocked(name, d)
	})
	if !found {
		i.FS.mu.Unlock()
		return fserrors.ErrNotFound.WithMessage(name)
	}

	target := i.childAt(targetID)
	var nlinkAfter uint32
	target.modifyDiskInode(func(d *layout.DiskInode) {
		d.InodeStat.DecreasePlink()
		nlinkAfter = d.InodeStat.Nlink
	})

	if nlinkAfter == 0 {
		i.FS.mu.Unlock()
		target.Clear()
		i.FS.mu.Lock()
	}

	tomb := layout.EmptyDirEntry()
	data, err := tomb.MarshalBinary()
	if err != nil {
		fserrors.Fatal(err)
	}
	i.modifyDiskInode(func(d *layout.DiskInode) {
		d.WriteAt(entryIdx*layout.DirEntrySize, data, i.FS.fs.Cache, i.Device)
	})

	i.FS.fs.Cache.SyncAll()
	i.FS.mu.Unlock()
	return nil
}

// Ls returns every non-tombstone name in the directory i backs.
func (i *Inode) Ls() []string {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var names []string
	i.readDiskInode(func(d *layout.DiskInode) {
		count := int(d.Size) / layout.DirEntrySize
		buf := make([]byte, layout.DirEntrySize)
		var e layout.DirEntry
		for idx := 0; idx < count; idx++ {
			d.ReadAt(idx*layout.DirEntrySize, buf, i.FS.fs.Cache, i.Device)
			if err := e.UnmarshalBinary(buf); err != nil {
				fserrors.Fatal(fserrors.ErrFileSystemCorrupted.WrapError(err))
			}
			if !e.IsEmpty() {
				names = append(names, e.Name())
			}
		}
	})
	return names
}

// ReadAt reads into buf starting at offset, returning the number of bytes
// copied (clamped to the file's current size; reading past end-of-file is
// not an error, per spec §7).
func (i *Inode) ReadAt(offset int, buf []byte) int {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var n int
	i.readDiskInode(func(d *layout.DiskInode) {
		n = d.ReadAt(offset, buf, i.FS.fs.Cache, i.Device)
	})
	return n
}

// WriteAt writes buf starting at offset, growing the file first if
// offset+len(buf) exceeds its current size.
func (i *Inode) WriteAt(offset int, buf []byte) int {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	i.increaseSizeLocked(uint32(offset + len(buf)))

	var n int
	i.modifyDiskInode(func(d *layout.DiskInode) {
		n = d.WriteAt(offset, buf, i.FS.fs.Cache, i.Device)
	})
	i.FS.fs.Cache.SyncAll()
	return n
}

// Clear frees every data and index block reachable from i and resets its
// size to zero. Any failures freeing individual blocks are aggregated (so
// one bad block doesn't mask a failure on the next) and then treated as a
// single fatal corruption per §7 — freeing is expected to always succeed on
// a consistent filesystem.
func (i *Inode) Clear() {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()
	i.clearLocked()
}

func (i *Inode) clearLocked() {
	var freed []uint32
	i.modifyDiskInode(func(d *layout.DiskInode) {
		freed = d.ClearSize(i.FS.fs.Cache, i.Device)
	})

	var result *multierror.Error
	for _, id := range freed {
		func(blockID uint32) {
			defer func() {
				if r := recover(); r != nil {
					result = multierror.Append(result, fmt.Errorf("dealloc block %d: %v", blockID, r))
				}
			}()
			i.FS.fs.DeallocData(blockID)
		}(id)
	}
	if err := result.ErrorOrNil(); err != nil {
		fserrors.Fatal(fserrors.ErrFileSystemCorrupted.WrapError(err))
	}
}

// Stat returns a copy of i's metadata record.
func (i *Inode) Stat() layout.Stat {
	i.FS.mu.Lock()
	defer i.FS.mu.Unlock()

	var s layout.Stat
	i.readDiskInode(func(d *layout.DiskInode) { s = d.InodeStat })
	return s
}
