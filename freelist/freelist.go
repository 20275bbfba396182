// Package freelist implements the pointer-block-chain structure shared by
// the volume's free-block list (head at block 2) and free-inode list (head
// at block 3): spec.md describes the inode list as "same shape as the
// free-block list", so both are built here on one generic chain type.
package freelist

import "github.com/blockfs/blockfs/blockcodec"

// Device is the minimal block access List needs.
type Device interface {
	ReadBlock(num uint32, buf []byte)
	WriteBlock(num uint32, buf []byte)
}

// slotCount is how many reusable entries fit in one pointer block: the
// final slot is reserved for the next_block chain link.
const slotCount = blockcodec.PointersPerBlock - 1

// RecycleFunc is invoked with the block number of a chain block that has
// just been fully drained and detached from the chain, so the caller can
// hand it to whatever owns physical block allocation.
type RecycleFunc func(blockNum uint32)

// List is a chain of pointer blocks holding reusable resource numbers
// (free physical block numbers, or free inumbers). The head block's
// physical address never changes for the lifetime of the volume — Open
// always rereads it from the same fixed constant (FreeBlockListHead or
// FreeInodeListHead) on every mount, so nothing persists a movable head
// pointer. Growth and drain therefore relocate *displaced* content to a
// freshly allocated block instead of moving the head, the same trick
// inode.List.grow uses to keep the inode-root block's address fixed at 1.
type List struct {
	dev       Device
	head      uint32
	count     *uint32 // backs superblock.free_blocks / superblock.free_inodes
	block     blockcodec.PointerBlock
	used      int // number of live entries in block, always <= slotCount
	onRecycle RecycleFunc
}

// Open loads the chain whose head is the fixed physical block head, given
// the live count from the superblock (free_blocks or free_inodes).
func Open(dev Device, head uint32, count *uint32) *List {
	l := &List{dev: dev, head: head, count: count}
	l.load()
	return l
}

// SetRecycle installs the callback Pop invokes when a chain block is
// detached because its content was pulled into the head. Push never
// invokes it.
func (l *List) SetRecycle(fn RecycleFunc) {
	l.onRecycle = fn
}

func (l *List) load() {
	var buf [blockcodec.BlockSize]byte
	l.dev.ReadBlock(l.head, buf[:])
	l.block = blockcodec.DecodePointerBlock(buf[:])

	// l.used is not inferred from zero-valued entries; instead it is
	// recomputed from the live *count, then kept in sync incrementally by
	// Push/Pop. Every chained block behind the head holds exactly slotCount
	// entries (it was relocated from a full head), and the head holds
	// between 1 and slotCount entries whenever the count is non-zero.
	l.used = 0
	if *l.count > 0 {
		l.used = int((*l.count-1)%slotCount) + 1
	}
}

func (l *List) save() {
	buf := l.block.Encode()
	l.dev.WriteBlock(l.head, buf[:])
}

// Empty reports whether the chain currently holds no reusable entries at all.
func (l *List) Empty() bool {
	return *l.count == 0
}

// nextBlock is the chain link stored in this head's final slot.
func (l *List) nextBlock() uint32 {
	return l.block.Entries[slotCount]
}

// Pop removes and returns one entry from the head of the chain. The caller
// must check Empty() first; Pop panics on an empty chain, since callers
// (block manager and inode list) always fall back to bump allocation before
// calling Pop.
//
// When the in-memory head block empties out and a next_block link exists,
// that next block's content is pulled into the fixed head address (so the
// head's physical block number never moves) and the now-vacated physical
// block is reported to onRecycle.
func (l *List) Pop() uint32 {
	if l.used == 0 {
		panic("freelist: Pop on empty chain")
	}
	l.used--
	v := l.block.Entries[l.used]
	l.block.Entries[l.used] = 0
	*l.count--

	if l.used == 0 && l.nextBlock() != 0 {
		next := l.nextBlock()
		var buf [blockcodec.BlockSize]byte
		l.dev.ReadBlock(next, buf[:])
		l.block = blockcodec.DecodePointerBlock(buf[:])
		remaining := int(*l.count)
		if remaining > slotCount {
			remaining = slotCount
		}
		l.used = remaining
		l.save()
		if l.onRecycle != nil {
			l.onRecycle(next)
		}
	} else {
		l.save()
	}
	return v
}

// Push adds one entry to the chain. When the head block is full, its
// current content (a full slotCount entries plus whatever next_block link
// it already carried) is relocated into a freshly allocated block, and the
// fixed head address is reset to an otherwise-empty block whose next_block
// points at the relocation — the same "new block becomes the new head"
// growth spec.md describes, achieved without moving the head's physical
// address.
func (l *List) Push(v uint32, alloc func() (uint32, error)) error {
	if l.used == slotCount {
		relocated, err := alloc()
		if err != nil {
			return err
		}
		buf := l.block.Encode()
		l.dev.WriteBlock(relocated, buf[:])

		var fresh blockcodec.PointerBlock
		fresh.Entries[slotCount] = relocated
		l.block = fresh
		l.used = 0
	}
	l.block.Entries[l.used] = v
	l.used++
	*l.count++
	l.save()
	return nil
}

// Head reports the chain's head block number. It never changes across the
// lifetime of a List.
func (l *List) Head() uint32 {
	return l.head
}
