package ioiter_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/inode"
	"github.com/blockfs/blockfs/ioiter"
)

type memDev struct {
	blocks map[uint32][blockcodec.BlockSize]byte
}

func newMemDev() *memDev {
	return &memDev{blocks: make(map[uint32][blockcodec.BlockSize]byte)}
}

func (m *memDev) ReadBlock(num uint32, buf []byte) {
	b := m.blocks[num]
	copy(buf, b[:])
}

func (m *memDev) WriteBlock(num uint32, buf []byte) {
	var b [blockcodec.BlockSize]byte
	copy(b[:], buf)
	m.blocks[num] = b
}

type fakeBlocks struct {
	next uint32
}

func (f *fakeBlocks) Allocate() (uint32, error) {
	b := f.next
	f.next++
	return b, nil
}

func (f *fakeBlocks) Free(nums []uint32) error { return nil }

func newProxy(dev *memDev) *inode.Proxy {
	inode.Format(dev)
	var numInodes, freeInodes uint32
	blocks := &fakeBlocks{next: 100}
	l := inode.Open(dev, blocks, &numInodes, &freeInodes)
	inum, err := l.Add()
	if err != nil {
		panic(err)
	}
	p, err := l.Proxy(inum)
	if err != nil {
		panic(err)
	}
	return p
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dev := newMemDev()
	p := newProxy(dev)
	nextBlk := uint32(500)
	alloc := func() (uint32, error) {
		b := nextBlk
		nextBlk++
		return b, nil
	}

	w := ioiter.NewWriter(dev, p, alloc)
	w.SeekToEnd()

	payload := bytes.Repeat([]byte("hello-blockfs-"), 500) // > one block
	n, err := w.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write returned %d, want %d", n, len(payload))
	}

	r := ioiter.NewReader(dev, p)
	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := r.Read(got[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestPartialBlockWritePreservesNeighboringBytes(t *testing.T) {
	dev := newMemDev()
	p := newProxy(dev)
	nextBlk := uint32(700)
	alloc := func() (uint32, error) {
		b := nextBlk
		nextBlk++
		return b, nil
	}

	w := ioiter.NewWriter(dev, p, alloc)
	w.SeekToEnd()
	if _, err := w.Write(bytes.Repeat([]byte{0xFF}, blockcodec.BlockSize)); err != nil {
		t.Fatalf("Write full block: %v", err)
	}

	w.Seek(10)
	if _, err := w.Write([]byte{0xAA, 0xAA}); err != nil {
		t.Fatalf("Write partial: %v", err)
	}

	r := ioiter.NewReader(dev, p)
	buf := make([]byte, blockcodec.BlockSize)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if buf[9] != 0xFF || buf[10] != 0xAA || buf[11] != 0xAA || buf[12] != 0xFF {
		t.Fatalf("partial write corrupted neighboring bytes: %v", buf[8:14])
	}
}

func TestReadAtEOFReturnsEOF(t *testing.T) {
	dev := newMemDev()
	p := newProxy(dev)
	r := ioiter.NewReader(dev, p)
	buf := make([]byte, 10)
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("Read on empty inode = %v, want io.EOF", err)
	}
}
