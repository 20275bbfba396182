package ioiter

import "github.com/blockfs/blockfs/inode"

// Writer sequentially writes an inode's byte stream. Writes that land
// exactly on a block boundary and fill it completely skip the
// read-modify-write dance and go straight to disk; partial-block writes
// read the target block first so the untouched bytes survive.
type Writer struct {
	dev   Device
	proxy *inode.Proxy
	pos   uint32
	size  uint32
	alloc func() (uint32, error)
}

// NewWriter opens a Writer positioned at the start of p's data. alloc
// supplies fresh physical block numbers, both for new leaves and for any
// pointer-block growth the data-pointer tree needs along the way.
func NewWriter(dev Device, p *inode.Proxy, alloc func() (uint32, error)) *Writer {
	return &Writer{dev: dev, proxy: p, size: p.Size(), alloc: alloc}
}

// Seek repositions the writer; offsets beyond the inode's current size
// clamp to size (growth only happens by writing, not by seeking past end).
func (w *Writer) Seek(offset uint32) {
	if offset > w.size {
		offset = w.size
	}
	w.pos = offset
}

// SeekToEnd positions the writer for an append.
func (w *Writer) SeekToEnd() {
	w.pos = w.size
}

// Write writes data at the writer's current position, overwriting any
// existing bytes there and growing the inode's
// data-pointer tree on demand when the position runs past the last
// allocated block, and returns the number of bytes written.
func (w *Writer) Write(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		blockIdx := w.pos / BlockSize
		offsetInBlock := w.pos % BlockSize

		for blockIdx >= w.proxy.TotalDataBlocks() {
			newBlk, err := w.alloc()
			if err != nil {
				return written, err
			}
			if err := w.proxy.AppendBlock(newBlk, w.alloc); err != nil {
				return written, err
			}
		}
		blockNum := w.proxy.BlockAt(blockIdx)

		n := BlockSize - offsetInBlock
		if uint32(len(data)) < n {
			n = uint32(len(data))
		}

		if offsetInBlock == 0 && n == BlockSize {
			w.dev.WriteBlock(blockNum, data[:n])
		} else {
			var block [BlockSize]byte
			w.dev.ReadBlock(blockNum, block[:])
			copy(block[offsetInBlock:], data[:n])
			w.dev.WriteBlock(blockNum, block[:])
		}

		w.pos += n
		written += int(n)
		data = data[n:]

		if w.pos > w.size {
			w.size = w.pos
			if err := w.proxy.SetSize(w.size); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Size reports the inode's size as of the writer's last write.
func (w *Writer) Size() uint32 { return w.size }
