// Package blockdev implements the fixed-size random-access block layer
// (spec component C1) over a backend.Storage, the same seam the teacher
// uses to keep its filesystem packages from touching *os.File directly
// (see backend/interface.go).
package blockdev

import (
	"fmt"
	"io"

	"github.com/blockfs/blockfs/backend"
	"github.com/blockfs/blockfs/backend/file"
	"github.com/blockfs/blockfs/blockcodec"
)

// BlockSize is re-exported from blockcodec for callers that only need the device.
const BlockSize = blockcodec.BlockSize

// Device is a fixed-size disk image, addressed one BlockSize-wide block at a time.
type Device struct {
	storage backend.Storage
	blocks  uint32
	mounts  int32
}

// Open opens the disk image at path, creating it (sized to nblocks*BlockSize)
// if it does not already exist. Mirrors the teacher's disk.Create sizing
// dance (Truncate to the target size) via backend/file.
func Open(path string, nblocks uint32) (*Device, error) {
	size := int64(nblocks) * BlockSize
	storage, err := file.Open(path, false)
	if err != nil {
		storage, err = file.Create(path, size)
		if err != nil {
			return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
		}
	}
	return &Device{storage: storage, blocks: nblocks}, nil
}

// Blocks reports the device's fixed capacity in blocks.
func (d *Device) Blocks() uint32 { return d.blocks }

// Mount/Unmount are diagnostic reference counters only; they carry no
// locking semantics of their own.
func (d *Device) Mount() { d.mounts++ }

func (d *Device) Unmount() {
	if d.mounts > 0 {
		d.mounts--
	}
}

func (d *Device) Mounted() bool     { return d.mounts > 0 }
func (d *Device) MountCount() int32 { return d.mounts }

func (d *Device) checkRange(blockNum uint32) {
	if blockNum >= d.blocks {
		panic(fmt.Errorf("blockdev: block %d out of range [0,%d)", blockNum, d.blocks))
	}
}

// ReadBlock reads exactly one BlockSize-wide block into buf. Block numbers
// outside [0, Blocks()) and I/O failures are both treated as fatal,
// programming-error-class conditions per spec.md §7 (OutOfRange, IoError):
// this aborts the process rather than returning a recoverable error.
func (d *Device) ReadBlock(blockNum uint32, buf []byte) {
	d.checkRange(blockNum)
	if len(buf) != BlockSize {
		panic(fmt.Errorf("blockdev: read buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}
	n, err := d.storage.ReadAt(buf, int64(blockNum)*BlockSize)
	if err != nil && err != io.EOF {
		panic(fmt.Errorf("blockdev: read block %d: %w", blockNum, err))
	}
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
}

// WriteBlock writes exactly one BlockSize-wide block. See ReadBlock for the
// fatal-on-failure contract.
func (d *Device) WriteBlock(blockNum uint32, buf []byte) {
	d.checkRange(blockNum)
	if len(buf) != BlockSize {
		panic(fmt.Errorf("blockdev: write buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}
	w, err := d.storage.Writable()
	if err != nil {
		panic(fmt.Errorf("blockdev: write block %d: %w", blockNum, err))
	}
	if _, err := w.WriteAt(buf, int64(blockNum)*BlockSize); err != nil {
		panic(fmt.Errorf("blockdev: write block %d: %w", blockNum, err))
	}
}

// Close releases the underlying backend.
func (d *Device) Close() error {
	return d.storage.Close()
}
