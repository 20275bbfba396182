package inode

import (
	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/ptrtree"
)

// Proxy is a typed accessor for one inode slot. It lazily constructs a
// ptrtree.Tree the first time data-block access is needed, and keeps it in
// sync with the underlying inode record across Append/Truncate calls.
type Proxy struct {
	list     *List
	inumber  uint32
	in       blockcodec.Inode
	tree     *ptrtree.Tree
}

// Proxy opens a typed accessor for inumber. The underlying inode record
// must already be valid; use List.Add to create one first.
func (l *List) Proxy(inumber uint32) (*Proxy, error) {
	in, err := l.Get(inumber)
	if err != nil {
		return nil, err
	}
	return &Proxy{list: l, inumber: inumber, in: in}, nil
}

// Inumber reports the inumber this proxy addresses.
func (p *Proxy) Inumber() uint32 { return p.inumber }

// Kind reports whether this inode is a file or a directory.
func (p *Proxy) Kind() blockcodec.Kind { return p.in.Kind }

// Size reports the inode's current byte length.
func (p *Proxy) Size() uint32 { return p.in.Size }

// Mode, UID, and GID expose the inode's permission metadata.
func (p *Proxy) Mode() uint16 { return p.in.Mode }
func (p *Proxy) UID() uint16  { return p.in.UID }
func (p *Proxy) GID() uint16  { return p.in.GID }

// TotalDataBlocks reports how many physical blocks this inode currently owns.
func (p *Proxy) TotalDataBlocks() uint32 { return p.in.TotalDataBlocks }

// SetKind stamps this inode's kind (file or directory) and persists it.
func (p *Proxy) SetKind(k blockcodec.Kind) error {
	p.in.Kind = k
	return p.save()
}

// SetMode stamps the inode's permission bits and persists it.
func (p *Proxy) SetMode(mode, uid, gid uint16) error {
	p.in.Mode = mode
	p.in.UID = uid
	p.in.GID = gid
	return p.save()
}

func (p *Proxy) save() error {
	return p.list.Set(p.inumber, p.in)
}

// ensureTree lazily loads this inode's data-pointer tree.
func (p *Proxy) ensureTree() *ptrtree.Tree {
	if p.tree == nil {
		p.tree = ptrtree.Load(p.list.dev, p.in.DataBlock, int(p.in.BlkPointerLevel), p.in.TotalDataBlocks)
	}
	return p.tree
}

// BlockAt returns the physical block number holding logical block index.
// index must be < TotalDataBlocks().
func (p *Proxy) BlockAt(index uint32) uint32 {
	return p.ensureTree().Lookup(index)
}

// AppendBlock grows this inode by one data block, allocating pointer
// blocks (and promoting the root if necessary) as the tree requires, and
// persists the updated root/level/count back into the inode record.
func (p *Proxy) AppendBlock(blockNum uint32, alloc func() (uint32, error)) error {
	t := p.ensureTree()
	if err := t.Append(blockNum, alloc); err != nil {
		return err
	}
	p.in.DataBlock = t.Root()
	p.in.BlkPointerLevel = uint8(t.Depth())
	p.in.TotalDataBlocks = t.TotalLeaves()
	return p.save()
}

// SetSize persists a new byte length for this inode (used after writes and
// truncation, once the caller has already reconciled data blocks).
func (p *Proxy) SetSize(size uint32) error {
	p.in.Size = size
	return p.save()
}

// ShrinkBlocks truncates the data-pointer tree down to newBlockCount
// leaves, persists the updated inode header, and returns every physical
// block number (leaves, orphaned pointer chunks, and possibly the root)
// that the caller should free.
func (p *Proxy) ShrinkBlocks(newBlockCount uint32) ([]uint32, error) {
	t := p.ensureTree()
	freed := t.Shrink(newBlockCount)
	p.in.DataBlock = t.Root()
	p.in.BlkPointerLevel = uint8(t.Depth())
	p.in.TotalDataBlocks = t.TotalLeaves()
	return freed, p.save()
}

// deallocatePointers materializes the full pointer tree and clears the
// inode record, returning every block number (root, indirects, leaves)
// that owned the removed inode's data.
func (p *Proxy) deallocatePointers() []uint32 {
	t := p.ensureTree()
	freed := t.Shrink(0)

	p.in.Valid = 0
	p.in.DataBlock = 0
	p.in.Size = 0
	p.in.TotalDataBlocks = 0
	p.in.BlkPointerLevel = 0
	_ = p.save()
	return freed
}
