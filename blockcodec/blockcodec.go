// Package blockcodec gives typed views over a raw 4096-byte block: the
// superblock, an inode block, a pointer block, or plain bytes. It plays the
// same role as the teacher's own from-bytes/to-bytes pairs
// (superblockFromBytes/toBytes, inodeFromBytes/toBytes in
// filesystem/ext4/ext4.go and inode.go): fixed-offset field access over a
// byte buffer, little-endian throughout regardless of the host's byte
// order.
package blockcodec

import "encoding/binary"

const (
	// BlockSize is the fixed size, in bytes, of every block on the volume.
	BlockSize = 4096
	// PointersPerBlock is how many 32-bit block numbers fit in one pointer block.
	PointersPerBlock = BlockSize / 4
	// InodeSize is the on-disk size, in bytes, of one inode record.
	InodeSize = 32
	// InodesPerBlock is how many inode-sized slots fit in one block.
	InodesPerBlock = BlockSize / InodeSize
	// InodeSlotsPerBlock is the usable inode count per inode block: one slot
	// is sacrificed to hold the next/prev chain links.
	InodeSlotsPerBlock = InodesPerBlock - 1

	// MagicNumber identifies a formatted volume's superblock.
	MagicNumber uint32 = 0xF0F03410

	// Fixed-purpose block addresses.
	SuperblockNum     = 0
	InodeRootBlock    = 1
	FreeBlockListHead = 2
	FreeInodeListHead = 3
)

// Kind discriminates what an inode slot refers to.
type Kind uint8

const (
	KindNone Kind = 0
	KindFile Kind = 1
	KindDir  Kind = 2
)

// Superblock is the decoded form of block 0.
type Superblock struct {
	Magic             uint32
	Blocks            uint32
	CurrentBlockIndex uint32
	FreeBlocks        uint32
	FreeInodes        uint32
	Inodes            uint32
	VolumeUUID        [16]byte
}

// Encode renders the superblock as a full 4096-byte block, zero-padded.
func (s *Superblock) Encode() [BlockSize]byte {
	var buf [BlockSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.Blocks)
	binary.LittleEndian.PutUint32(buf[8:12], s.CurrentBlockIndex)
	binary.LittleEndian.PutUint32(buf[12:16], s.FreeBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], s.FreeInodes)
	binary.LittleEndian.PutUint32(buf[20:24], s.Inodes)
	copy(buf[24:40], s.VolumeUUID[:])
	return buf
}

// DecodeSuperblock reads a superblock from the first bytes of buf.
func DecodeSuperblock(buf []byte) Superblock {
	var s Superblock
	s.Magic = binary.LittleEndian.Uint32(buf[0:4])
	s.Blocks = binary.LittleEndian.Uint32(buf[4:8])
	s.CurrentBlockIndex = binary.LittleEndian.Uint32(buf[8:12])
	s.FreeBlocks = binary.LittleEndian.Uint32(buf[12:16])
	s.FreeInodes = binary.LittleEndian.Uint32(buf[16:20])
	s.Inodes = binary.LittleEndian.Uint32(buf[20:24])
	copy(s.VolumeUUID[:], buf[24:40])
	return s
}

// Inode is the decoded form of one 32-byte inode record.
type Inode struct {
	Valid           uint8
	Kind            Kind
	BlkPointerLevel uint8
	Size            uint32
	Ctime           uint32
	Atime           uint32
	DataBlock       uint32
	TotalDataBlocks uint32
	HardLinks       uint16
	UID             uint16
	GID             uint16
	Mode            uint16
}

func (n *Inode) encodeInto(buf []byte) {
	buf[0] = n.Valid
	buf[1] = byte(n.Kind)
	buf[2] = n.BlkPointerLevel
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], n.Size)
	binary.LittleEndian.PutUint32(buf[8:12], n.Ctime)
	binary.LittleEndian.PutUint32(buf[12:16], n.Atime)
	binary.LittleEndian.PutUint32(buf[16:20], n.DataBlock)
	binary.LittleEndian.PutUint32(buf[20:24], n.TotalDataBlocks)
	binary.LittleEndian.PutUint16(buf[24:26], n.HardLinks)
	binary.LittleEndian.PutUint16(buf[26:28], n.UID)
	binary.LittleEndian.PutUint16(buf[28:30], n.GID)
	binary.LittleEndian.PutUint16(buf[30:32], n.Mode)
}

func decodeInode(buf []byte) Inode {
	var n Inode
	n.Valid = buf[0]
	n.Kind = Kind(buf[1])
	n.BlkPointerLevel = buf[2]
	n.Size = binary.LittleEndian.Uint32(buf[4:8])
	n.Ctime = binary.LittleEndian.Uint32(buf[8:12])
	n.Atime = binary.LittleEndian.Uint32(buf[12:16])
	n.DataBlock = binary.LittleEndian.Uint32(buf[16:20])
	n.TotalDataBlocks = binary.LittleEndian.Uint32(buf[20:24])
	n.HardLinks = binary.LittleEndian.Uint16(buf[24:26])
	n.UID = binary.LittleEndian.Uint16(buf[26:28])
	n.GID = binary.LittleEndian.Uint16(buf[28:30])
	n.Mode = binary.LittleEndian.Uint16(buf[30:32])
	return n
}

// InodeBlock is the decoded form of one inode-chain block: forward/backward
// links plus InodeSlotsPerBlock inode records.
type InodeBlock struct {
	Next  uint32
	Prev  uint32
	Slots [InodeSlotsPerBlock]Inode
}

// Encode renders the inode block as a full 4096-byte block.
func (b *InodeBlock) Encode() [BlockSize]byte {
	var buf [BlockSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], b.Next)
	binary.LittleEndian.PutUint32(buf[4:8], b.Prev)
	for i := range b.Slots {
		off := InodeSize + i*InodeSize
		b.Slots[i].encodeInto(buf[off : off+InodeSize])
	}
	return buf
}

// DecodeInodeBlock reads an inode block from buf.
func DecodeInodeBlock(buf []byte) InodeBlock {
	var b InodeBlock
	b.Next = binary.LittleEndian.Uint32(buf[0:4])
	b.Prev = binary.LittleEndian.Uint32(buf[4:8])
	for i := range b.Slots {
		off := InodeSize + i*InodeSize
		b.Slots[i] = decodeInode(buf[off : off+InodeSize])
	}
	return b
}

// PointerBlock is an array of PointersPerBlock 32-bit block numbers, used
// both for an inode's data-pointer tree and for the free-block/free-inode
// list chains (whose last entry doubles as the next_block link).
type PointerBlock struct {
	Entries [PointersPerBlock]uint32
}

// Encode renders the pointer block as a full 4096-byte block.
func (p *PointerBlock) Encode() [BlockSize]byte {
	var buf [BlockSize]byte
	for i, v := range p.Entries {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	return buf
}

// DecodePointerBlock reads a pointer block from buf.
func DecodePointerBlock(buf []byte) PointerBlock {
	var p PointerBlock
	for i := range p.Entries {
		p.Entries[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return p
}
