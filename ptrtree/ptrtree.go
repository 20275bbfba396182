// Package ptrtree implements the variable-depth pointer tree that maps an
// inode's logical block index to a physical block number (spec component
// C4). Depth 0 means the inode's single root block holds leaf (data)
// block numbers directly; each depth increment wraps another layer of
// indirection around the existing tree, the same direct/indirect split
// github.com/diskfs/go-diskfs/filesystem/ext4 uses for its own
// singly/doubly/triply-indirect extent blocks (see ext4/inode.go).
package ptrtree

import (
	"github.com/blockfs/blockfs/blockcodec"
)

// Device is the minimal block access Tree needs.
type Device interface {
	ReadBlock(num uint32, buf []byte)
	WriteBlock(num uint32, buf []byte)
}

const pointersPerBlock = blockcodec.PointersPerBlock

// Tree is the decoded, in-memory form of one inode's data-pointer tree.
type Tree struct {
	dev   Device
	root  uint32
	depth int
	total uint32     // number of leaf (data) blocks currently in the tree
	// levels[0] holds leaf block numbers; levels[k] for k>0 holds the
	// addresses of the blocks that store levels[k-1] in chunks of up to
	// pointersPerBlock entries. levels[depth] is root's own on-disk
	// content.
	levels [][]uint32
}

func ceilDiv(a, b uint32) uint32 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// capacity is the maximum number of leaves a tree of the given depth can hold.
func capacity(depth int) uint64 {
	c := uint64(1)
	for i := 0; i <= depth; i++ {
		c *= pointersPerBlock
	}
	return c
}

// Load reconstructs a Tree from an inode's root pointer, depth, and exact
// leaf count. The exact count (carried in the inode's total_data_blocks
// field) lets Load size every level precisely instead of scanning for a
// zero-value sentinel entry, which would be ambiguous since block number
// 0 is otherwise meaningless here but not reserved in the on-disk format.
func Load(dev Device, root uint32, depth int, totalLeaves uint32) *Tree {
	t := &Tree{dev: dev, root: root, depth: depth, total: totalLeaves}
	if totalLeaves == 0 || root == 0 {
		t.root = 0
		t.depth = 0
		t.total = 0
		t.levels = [][]uint32{{}}
		return t
	}

	counts := make([]uint32, depth+1)
	counts[0] = totalLeaves
	for k := 1; k <= depth; k++ {
		counts[k] = ceilDiv(counts[k-1], pointersPerBlock)
	}

	levels := make([][]uint32, depth+1)
	levels[depth] = readPointerBlock(dev, root, counts[depth])
	for k := depth; k > 0; k-- {
		levels[k-1] = expand(dev, levels[k], counts[k-1])
	}
	t.levels = levels
	return t
}

func readPointerBlock(dev Device, blockNum uint32, want uint32) []uint32 {
	var buf [blockcodec.BlockSize]byte
	dev.ReadBlock(blockNum, buf[:])
	pb := blockcodec.DecodePointerBlock(buf[:])
	if want > pointersPerBlock {
		want = pointersPerBlock
	}
	out := make([]uint32, want)
	copy(out, pb.Entries[:want])
	return out
}

func expand(dev Device, addrs []uint32, want uint32) []uint32 {
	out := make([]uint32, 0, want)
	remaining := want
	for _, addr := range addrs {
		take := remaining
		if take > pointersPerBlock {
			take = pointersPerBlock
		}
		out = append(out, readPointerBlock(dev, addr, take)...)
		remaining -= take
	}
	return out
}

// Root, Depth, and TotalLeaves expose the tree's header fields, for callers
// that persist them back into the owning inode record.
func (t *Tree) Root() uint32        { return t.root }
func (t *Tree) Depth() int          { return t.depth }
func (t *Tree) TotalLeaves() uint32 { return t.total }

// Leaves returns a copy of the tree's leaf block numbers in logical order.
func (t *Tree) Leaves() []uint32 {
	out := make([]uint32, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// Lookup returns the physical block number at the given logical index.
func (t *Tree) Lookup(index uint32) uint32 {
	return t.levels[0][index]
}

// Append grows the tree by one leaf, allocating whatever pointer blocks
// (and, if the tree is at capacity, a new root) are needed along the way.
func (t *Tree) Append(leaf uint32, alloc func() (uint32, error)) error {
	switch {
	case t.root == 0:
		newRoot, err := alloc()
		if err != nil {
			return err
		}
		t.root = newRoot
		t.depth = 0
		t.levels = [][]uint32{{}}
	case uint64(t.total) == capacity(t.depth):
		newRoot, err := alloc()
		if err != nil {
			return err
		}
		t.levels = append(t.levels, []uint32{t.root})
		t.root = newRoot
		t.depth++
	}

	if err := t.appendEntry(0, leaf, alloc); err != nil {
		return err
	}
	t.total++
	t.persist()
	return nil
}

// appendEntry records value as the newest entry at level, recursing up to
// allocate a fresh chunk block (and record its address one level up)
// whenever value is the first entry in a new physical chunk.
func (t *Tree) appendEntry(level int, value uint32, alloc func() (uint32, error)) error {
	t.levels[level] = append(t.levels[level], value)
	if level == t.depth {
		return nil
	}
	if len(t.levels[level])%pointersPerBlock == 1 {
		newBlk, err := alloc()
		if err != nil {
			return err
		}
		return t.appendEntry(level+1, newBlk, alloc)
	}
	return nil
}

// Shrink truncates the tree down to newCount leaves, returning every block
// number (leaves, orphaned pointer-chunk blocks, and the root itself if the
// tree becomes empty) that the caller should hand to the block manager.
// newCount must be <= TotalLeaves().
func (t *Tree) Shrink(newCount uint32) []uint32 {
	var freed []uint32
	freed = append(freed, t.levels[0][newCount:]...)
	t.levels[0] = t.levels[0][:newCount]
	t.total = newCount

	if newCount == 0 {
		for k := 1; k <= t.depth; k++ {
			freed = append(freed, t.levels[k]...)
		}
		if t.root != 0 {
			freed = append(freed, t.root)
		}
		t.root = 0
		t.depth = 0
		t.levels = [][]uint32{{}}
		return freed
	}

	for k := 1; k <= t.depth; k++ {
		needed := ceilDiv(uint32(len(t.levels[k-1])), pointersPerBlock)
		if uint32(len(t.levels[k])) > needed {
			freed = append(freed, t.levels[k][needed:]...)
			t.levels[k] = t.levels[k][:needed]
		}
	}
	t.persist()
	return freed
}

// persist writes every trailing chunk block, from the leaves up to the
// root, that Append or Shrink may have just touched.
func (t *Tree) persist() {
	if t.root == 0 {
		return
	}
	for k := 0; k < t.depth; k++ {
		if len(t.levels[k]) == 0 {
			continue
		}
		chunkIdx := (len(t.levels[k]) - 1) / pointersPerBlock
		chunkStart := chunkIdx * pointersPerBlock
		blockAddr := t.levels[k+1][chunkIdx]
		writePointerBlock(t.dev, blockAddr, t.levels[k][chunkStart:])
	}
	writePointerBlock(t.dev, t.root, t.levels[t.depth])
}

func writePointerBlock(dev Device, blockNum uint32, entries []uint32) {
	var pb blockcodec.PointerBlock
	copy(pb.Entries[:], entries)
	buf := pb.Encode()
	dev.WriteBlock(blockNum, buf[:])
}
