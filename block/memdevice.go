package block

import (
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// MemDevice is a Device backed entirely by an in-memory byte slice. It's
// used throughout the test suite (cmd/mkfs always uses a FileDevice),
// wrapping the storage in a bytesextra.ReadWriteSeeker the same way the
// teacher's blockcache.WrapSlice does.
type MemDevice struct {
	stream      io.ReadWriteSeeker
	totalBlocks uint64
}

// NewMemDevice creates a MemDevice over storage, which must be a multiple of
// BlockSize bytes long.
func NewMemDevice(storage []byte) *MemDevice {
	return &MemDevice{
		stream:      bytesextra.NewReadWriteSeeker(storage),
		totalBlocks: uint64(len(storage)) / BlockSize,
	}
}

func (d *MemDevice) TotalBlocks() uint64 {
	return d.totalBlocks
}

func (d *MemDevice) ReadBlock(id uint64, buf []byte) error {
	if err := CheckBounds(d, id, buf); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(id)*BlockSize, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, buf)
	return err
}

func (d *MemDevice) WriteBlock(id uint64, buf []byte) error {
	if err := CheckBounds(d, id, buf); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(id)*BlockSize, io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(buf)
	return err
}
