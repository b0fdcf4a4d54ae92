package block

import (
	"io"
	"os"
)

// FileDevice is a Device backed by a real file on disk, for use with actual
// disk images produced by cmd/mkfs.
type FileDevice struct {
	file        *os.File
	totalBlocks uint64
}

// NewFileDevice wraps file as a Device. totalBlocks is the device's fixed
// capacity; the file is expected to already be at least that many blocks
// long (cmd/mkfs truncates it to size before handing it to FileSystem.Create).
func NewFileDevice(file *os.File, totalBlocks uint64) *FileDevice {
	return &FileDevice{file: file, totalBlocks: totalBlocks}
}

func (d *FileDevice) TotalBlocks() uint64 {
	return d.totalBlocks
}

func (d *FileDevice) ReadBlock(id uint64, buf []byte) error {
	if err := CheckBounds(d, id, buf); err != nil {
		return err
	}
	_, err := d.file.ReadAt(buf, int64(id)*BlockSize)
	if err == io.EOF {
		return nil
	}
	return err
}

func (d *FileDevice) WriteBlock(id uint64, buf []byte) error {
	if err := CheckBounds(d, id, buf); err != nil {
		return err
	}
	_, err := d.file.WriteAt(buf, int64(id)*BlockSize)
	return err
}

// Sync flushes the underlying file to stable storage.
func (d *FileDevice) Sync() error {
	return d.file.Sync()
}
