// Package block defines the block device capability the easyfs core
// consumes as an external collaborator (spec §2.1): fixed-size block reads
// and writes by index. Everything above this package — the cache, the
// bitmap allocators, the on-disk layout — only ever talks to a Device, never
// to a file or a byte slice directly.
package block

import (
	"fmt"

	fserrors "github.com/go-easyfs/easyfs/errors"
)

// BlockSize is the fixed size of a single block, in bytes (spec §3).
const BlockSize = 512

// Device is a fixed-size block device: every read or write is exactly
// BlockSize bytes, addressed by a zero-based block index.
type Device interface {
	// ReadBlock fills buf (which must be BlockSize bytes) with the contents
	// of block id.
	ReadBlock(id uint64, buf []byte) error
	// WriteBlock writes buf (which must be BlockSize bytes) to block id.
	WriteBlock(id uint64, buf []byte) error
	// TotalBlocks returns the number of addressable blocks on the device.
	TotalBlocks() uint64
}

// CheckBounds validates a block access against a device's capacity and the
// buffer's length before a concrete Device implementation touches storage.
func CheckBounds(device Device, id uint64, buf []byte) error {
	if len(buf) != BlockSize {
		return fserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}
	if id >= device.TotalBlocks() {
		return fserrors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("block %d not in [0, %d)", id, device.TotalBlocks()))
	}
	return nil
}
