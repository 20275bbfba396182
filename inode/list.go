// Package inode implements the inode-block chain (spec component C6) and
// the per-inode typed accessor built on top of it (component C5), grounded
// on how github.com/diskfs/go-diskfs/filesystem/ext4 keeps its inode table
// as a flat, block-addressed array (see ext4/inode.go, bitmaps.go) while
// additionally modelling this format's doubly-linked, ever-growing chain
// of inode blocks rooted at a fixed physical address.
package inode

import (
	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/errs"
	"github.com/blockfs/blockfs/freelist"
)

// Device is the minimal block access List needs.
type Device interface {
	ReadBlock(num uint32, buf []byte)
	WriteBlock(num uint32, buf []byte)
}

// BlockAllocator is the subset of blockmgr.Manager List needs: it grows the
// inode-block chain itself and frees an inode's data blocks on removal.
type BlockAllocator interface {
	Allocate() (uint32, error)
	Free(nums []uint32) error
}

const slotsPerBlock = blockcodec.InodeSlotsPerBlock

// List manages the inode-block chain. The chain's head is always the
// fixed physical block InodeRootBlock; List tracks every block's physical
// address in creation order in chain, so chain[len(chain)-1] is always
// InodeRootBlock and inumber i lives in chain[(i-1)/slotsPerBlock].
type List struct {
	dev        Device
	blocks     BlockAllocator
	chain      []uint32
	numInodes  *uint32 // superblock.inodes, the high-water inumber count
	freeInodes *freelist.List
}

// Open attaches a List to an already-formatted volume, reconstructing the
// chain's physical addresses by following each block's next_block link
// starting from InodeRootBlock.
func Open(dev Device, blocks BlockAllocator, numInodes *uint32, freeInodeCount *uint32) *List {
	l := &List{
		dev:       dev,
		blocks:    blocks,
		chain:     reconstructChain(dev),
		numInodes: numInodes,
	}
	fl := freelist.Open(dev, blockcodec.FreeInodeListHead, freeInodeCount)
	// A drained free-inode-list chunk block is not itself a spare inumber;
	// it is ordinary disk space, so it goes back to the block manager
	// rather than being reinserted into this chain.
	fl.SetRecycle(func(drained uint32) { _ = blocks.Free([]uint32{drained}) })
	l.freeInodes = fl
	return l
}

func reconstructChain(dev Device) []uint32 {
	var newestToOldest []uint32
	cur := uint32(blockcodec.InodeRootBlock)
	for {
		newestToOldest = append(newestToOldest, cur)
		var buf [blockcodec.BlockSize]byte
		dev.ReadBlock(cur, buf[:])
		ib := blockcodec.DecodeInodeBlock(buf[:])
		if ib.Next == 0 {
			break
		}
		cur = ib.Next
	}
	chain := make([]uint32, len(newestToOldest))
	for i, v := range newestToOldest {
		chain[len(chain)-1-i] = v
	}
	return chain
}

// Format initializes a fresh volume's inode-block chain (an empty block at
// InodeRootBlock) and free-inode list head (an empty pointer block at
// FreeInodeListHead).
func Format(dev Device) {
	var empty blockcodec.InodeBlock
	buf := empty.Encode()
	dev.WriteBlock(blockcodec.InodeRootBlock, buf[:])

	var emptyPtrs blockcodec.PointerBlock
	pbuf := emptyPtrs.Encode()
	dev.WriteBlock(blockcodec.FreeInodeListHead, pbuf[:])
}

// locate maps a 1-based inumber (0 is the reserved "none" sentinel) to its
// containing inode block's position in the chain and its slot within it.
func locate(inumber uint32) (blockIdx int, slot int) {
	idx := inumber - 1
	return int(idx / slotsPerBlock), int(idx % slotsPerBlock)
}

// Get reads one inode record by inumber.
func (l *List) Get(inumber uint32) (blockcodec.Inode, error) {
	if inumber == 0 || inumber > *l.numInodes {
		return blockcodec.Inode{}, errs.ErrInvalidInode
	}
	blockIdx, slot := locate(inumber)
	if blockIdx >= len(l.chain) {
		return blockcodec.Inode{}, errs.ErrInvalidInode
	}
	var buf [blockcodec.BlockSize]byte
	l.dev.ReadBlock(l.chain[blockIdx], buf[:])
	ib := blockcodec.DecodeInodeBlock(buf[:])
	slotVal := ib.Slots[slot]
	if slotVal.Valid == 0 {
		return slotVal, errs.ErrInvalidInode
	}
	return slotVal, nil
}

// Set overwrites one inode record by inumber, regardless of its validity bit.
func (l *List) Set(inumber uint32, in blockcodec.Inode) error {
	blockIdx, slot := locate(inumber)
	if blockIdx >= len(l.chain) {
		return errs.ErrInvalidInode
	}
	blockNum := l.chain[blockIdx]
	var buf [blockcodec.BlockSize]byte
	l.dev.ReadBlock(blockNum, buf[:])
	ib := blockcodec.DecodeInodeBlock(buf[:])
	ib.Slots[slot] = in
	out := ib.Encode()
	l.dev.WriteBlock(blockNum, out[:])
	return nil
}

// Add allocates a fresh inumber: reusing one from the free-inode list if
// any exist, otherwise writing into the head inode block's next free slot
// and growing the chain first if that block is already full.
func (l *List) Add() (uint32, error) {
	if !l.freeInodes.Empty() {
		inum := l.freeInodes.Pop()
		if err := l.Set(inum, blockcodec.Inode{Valid: 1}); err != nil {
			return 0, err
		}
		return inum, nil
	}

	headIdx := len(l.chain) - 1
	slotInHead := int(*l.numInodes) - headIdx*slotsPerBlock
	if slotInHead >= slotsPerBlock {
		if err := l.grow(); err != nil {
			return 0, err
		}
	}

	inum := *l.numInodes + 1
	*l.numInodes = inum
	if err := l.Set(inum, blockcodec.Inode{Valid: 1}); err != nil {
		return 0, err
	}
	return inum, nil
}

// grow relocates the current head inode block to a freshly allocated
// physical block and installs an empty block at the fixed head address, so
// the head's physical address never changes across the volume's lifetime.
func (l *List) grow() error {
	newBlockNum, err := l.blocks.Allocate()
	if err != nil {
		return err
	}

	var buf [blockcodec.BlockSize]byte
	l.dev.ReadBlock(blockcodec.InodeRootBlock, buf[:])
	old := blockcodec.DecodeInodeBlock(buf[:])
	old.Prev = blockcodec.InodeRootBlock
	relocated := old.Encode()
	l.dev.WriteBlock(newBlockNum, relocated[:])

	var fresh blockcodec.InodeBlock
	fresh.Next = newBlockNum
	freshBuf := fresh.Encode()
	l.dev.WriteBlock(blockcodec.InodeRootBlock, freshBuf[:])

	l.chain[len(l.chain)-1] = newBlockNum
	l.chain = append(l.chain, blockcodec.InodeRootBlock)
	return nil
}

// Remove frees every data and pointer block owned by inumber, clears its
// inode slot, and pushes the inumber onto the free-inode list.
func (l *List) Remove(inumber uint32) error {
	p, err := l.Proxy(inumber)
	if err != nil {
		return err
	}
	freed := p.deallocatePointers()
	if len(freed) > 0 {
		if err := l.blocks.Free(freed); err != nil {
			return err
		}
	}
	return l.freeInodes.Push(inumber, func() (uint32, error) { return l.blocks.Allocate() })
}

// Exists reports whether inumber currently names a valid inode.
func (l *List) Exists(inumber uint32) bool {
	_, err := l.Get(inumber)
	return err == nil
}
