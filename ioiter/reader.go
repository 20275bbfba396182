// Package ioiter implements the byte-granular sequential reader and writer
// over an inode's data blocks (spec components C7 and C8), grounded on the
// same block-at-a-time copy loop github.com/diskfs/go-diskfs's FAT/ext4
// file implementations use (see filesystem/fat32/file.go's Read/Write),
// adapted to this format's variable-depth pointer tree instead of a FAT
// chain.
package ioiter

import (
	"io"

	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/inode"
)

// BlockSize is re-exported for callers sizing their own buffers.
const BlockSize = blockcodec.BlockSize

// Device is the minimal block access the iterators need.
type Device interface {
	ReadBlock(num uint32, buf []byte)
	WriteBlock(num uint32, buf []byte)
}

// Reader sequentially reads an inode's byte stream, one block at a time.
type Reader struct {
	dev   Device
	proxy *inode.Proxy
	pos   uint32
	size  uint32
}

// NewReader opens a Reader positioned at the start of p's data.
func NewReader(dev Device, p *inode.Proxy) *Reader {
	return &Reader{dev: dev, proxy: p, size: p.Size()}
}

// Seek repositions the reader; offsets beyond the inode's size clamp to size.
func (r *Reader) Seek(offset uint32) {
	if offset > r.size {
		offset = r.size
	}
	r.pos = offset
}

// Read implements io.Reader, filling buf a block at a time and returning
// io.EOF once the inode's recorded size is reached.
func (r *Reader) Read(buf []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	read := 0
	var block [BlockSize]byte
	for read < len(buf) && r.pos < r.size {
		blockIdx := r.pos / BlockSize
		offsetInBlock := r.pos % BlockSize
		blockNum := r.proxy.BlockAt(blockIdx)
		r.dev.ReadBlock(blockNum, block[:])

		avail := BlockSize - offsetInBlock
		remaining := r.size - r.pos
		if avail > remaining {
			avail = remaining
		}
		want := uint32(len(buf) - read)
		if avail > want {
			avail = want
		}
		copy(buf[read:], block[offsetInBlock:offsetInBlock+avail])
		read += int(avail)
		r.pos += avail
	}
	return read, nil
}
