// Package fsengine implements the top-level filesystem facade (spec
// component C9): format, mount, create/create-dir, remove, stat, read,
// write, and truncate, wired over the block manager, inode list, pointer
// tree, and byte-granular iterators. It plays the role
// github.com/diskfs/go-diskfs/filesystem/ext4's top-level FileSystem type
// plays for ext4: the one type application code actually calls.
package fsengine

import (
	"fmt"

	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/blockdev"
	"github.com/blockfs/blockfs/blockmgr"
	"github.com/blockfs/blockfs/dirent"
	"github.com/blockfs/blockfs/errs"
	"github.com/blockfs/blockfs/inode"
	"github.com/blockfs/blockfs/ioiter"
)

// RootInumber is the inumber the volume's root directory gets once
// something seeds it (see EnsureRoot): it is always the first inode any
// fresh inode table hands out.
const RootInumber = 1

// FS is a mounted volume: the superblock, the block manager, and the inode
// list, all wired over one blockdev.Device.
type FS struct {
	dev *blockdev.Device
	sb  blockcodec.Superblock
	bm  *blockmgr.Manager
	il  *inode.List
}

// Format destroys any prior content and writes a fresh, empty volume: a
// superblock with zero counters and current_block_index 4, an empty
// inode-block chain, and empty free-block and
// free-inode lists. Per §4.9, format's contract ends there — it does not
// allocate or seed any inode. Scenario 1 in §8 depends on this: formatting
// a 20-block volume and reading Debug() back must show inodes=0,
// current_block_index=4, free_blocks=0, free_inodes=0 with nothing else
// touched. Callers that need a root directory (the FUSE mount path) call
// EnsureRoot once, explicitly, after Format; the CLI's format command does
// not.
func Format(dev *blockdev.Device, volumeUUID [16]byte) (*FS, error) {
	sb := blockcodec.Superblock{
		Magic:             blockcodec.MagicNumber,
		Blocks:            dev.Blocks(),
		CurrentBlockIndex: 4,
		VolumeUUID:        volumeUUID,
	}
	writeSuperblock(dev, &sb)
	inode.Format(dev)

	var emptyPtrs blockcodec.PointerBlock
	buf := emptyPtrs.Encode()
	dev.WriteBlock(blockcodec.FreeBlockListHead, buf[:])

	return open(dev, sb), nil
}

// EnsureRoot creates and seeds the volume's root directory inode — "." and
// ".." pointing at itself — if it does not already exist, and reports its
// inumber (always RootInumber). It is idempotent: calling it again after
// the root already exists is a no-op that just returns RootInumber.
func (fs *FS) EnsureRoot() (uint32, error) {
	if fs.il.Exists(RootInumber) {
		return RootInumber, nil
	}
	root, err := fs.CreateDir()
	if err != nil {
		return 0, fmt.Errorf("fsengine: seed root directory: %w", err)
	}
	if root != RootInumber {
		return 0, fmt.Errorf("fsengine: root directory got inumber %d, want %d", root, RootInumber)
	}
	if err := fs.writeDir(root, dirent.New(root, root)); err != nil {
		return 0, fmt.Errorf("fsengine: seed root directory payload: %w", err)
	}
	return root, nil
}

// Mount loads an already-formatted volume's superblock and reconstructs
// its in-memory inode table. It rejects a volume whose magic number does
// not match a formatted blockfs volume.
func Mount(dev *blockdev.Device) (*FS, error) {
	var buf [blockcodec.BlockSize]byte
	dev.ReadBlock(blockcodec.SuperblockNum, buf[:])
	sb := blockcodec.DecodeSuperblock(buf[:])
	if sb.Magic != blockcodec.MagicNumber {
		return nil, errs.ErrBadMagic
	}
	dev.Mount()
	return open(dev, sb), nil
}

func open(dev *blockdev.Device, sb blockcodec.Superblock) *FS {
	fs := &FS{dev: dev, sb: sb}
	fs.bm = blockmgr.Open(dev, blockmgr.Superblock{
		Blocks:            &fs.sb.Blocks,
		CurrentBlockIndex: &fs.sb.CurrentBlockIndex,
		FreeBlocks:        &fs.sb.FreeBlocks,
	})
	fs.il = inode.Open(dev, fs.bm, &fs.sb.Inodes, &fs.sb.FreeInodes)
	return fs
}

// Unmount persists the superblock one last time and releases the device's
// diagnostic mount reference count.
func (fs *FS) Unmount() error {
	writeSuperblock(fs.dev, &fs.sb)
	fs.dev.Unmount()
	return fs.dev.Sync()
}

func writeSuperblock(dev *blockdev.Device, sb *blockcodec.Superblock) {
	buf := sb.Encode()
	dev.WriteBlock(blockcodec.SuperblockNum, buf[:])
}

func (fs *FS) persistSuperblock() {
	writeSuperblock(fs.dev, &fs.sb)
}

// Create allocates a fresh regular-file inode and returns its inumber.
func (fs *FS) Create() (uint32, error) {
	return fs.createKind(blockcodec.KindFile)
}

// CreateDir allocates a fresh directory inode and returns its inumber. The
// caller is responsible for writing the directory's "."/".." payload
// (EnsureRoot does this for the root; MakeDir does it for everything else).
func (fs *FS) CreateDir() (uint32, error) {
	return fs.createKind(blockcodec.KindDir)
}

func (fs *FS) createKind(kind blockcodec.Kind) (uint32, error) {
	inum, err := fs.il.Add()
	if err != nil {
		return 0, err
	}
	p, err := fs.il.Proxy(inum)
	if err != nil {
		return 0, err
	}
	if err := p.SetKind(kind); err != nil {
		return 0, err
	}
	fs.persistSuperblock()
	return inum, nil
}

// Remove deallocates an inode's data blocks and frees its inumber.
func (fs *FS) Remove(inumber uint32) error {
	if err := fs.il.Remove(inumber); err != nil {
		return err
	}
	fs.persistSuperblock()
	return nil
}

// Stat reports an inode's current byte size.
func (fs *FS) Stat(inumber uint32) (uint32, error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return 0, err
	}
	return p.Size(), nil
}

// Statfs reports (total blocks, blocks still available for allocation).
func (fs *FS) Statfs() (blocks uint32, free uint32) {
	available := fs.sb.Blocks - fs.sb.CurrentBlockIndex + fs.sb.FreeBlocks
	return fs.sb.Blocks, available
}

// Read copies up to len(buf) bytes from inumber's data starting at offset,
// clamped to the inode's size, and returns the number of bytes copied.
func (fs *FS) Read(inumber uint32, offset uint32, buf []byte) (int, error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return 0, err
	}
	r := ioiter.NewReader(fs.dev, p)
	r.Seek(offset)
	n, err := r.Read(buf)
	if err != nil && n == 0 {
		return 0, nil
	}
	return n, nil
}

// Write writes data into inumber's byte stream at offset, growing the
// inode (allocating new data and pointer blocks as needed) if the write
// extends past the current size.
func (fs *FS) Write(inumber uint32, offset uint32, data []byte) (int, error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return 0, err
	}
	w := ioiter.NewWriter(fs.dev, p, fs.bm.Allocate)
	w.Seek(offset)
	n, err := w.Write(data)
	fs.persistSuperblock()
	return n, err
}

// Truncate shrinks or zero-extends inumber to exactly byte_offset bytes.
func (fs *FS) Truncate(inumber uint32, byteOffset uint32) error {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return err
	}

	const blockSize = blockcodec.BlockSize
	wantBlocks := (byteOffset + blockSize - 1) / blockSize

	if wantBlocks < p.TotalDataBlocks() {
		freed, err := p.ShrinkBlocks(wantBlocks)
		if err != nil {
			return err
		}
		if len(freed) > 0 {
			if err := fs.bm.Free(freed); err != nil {
				return err
			}
		}
		if err := p.SetSize(byteOffset); err != nil {
			return err
		}
		fs.persistSuperblock()
		return nil
	}

	if byteOffset > p.Size() {
		pad := make([]byte, byteOffset-p.Size())
		w := ioiter.NewWriter(fs.dev, p, fs.bm.Allocate)
		w.SeekToEnd()
		if _, err := w.Write(pad); err != nil {
			return err
		}
		fs.persistSuperblock()
		return nil
	}

	return p.SetSize(byteOffset)
}

// ReadDir decodes inumber's payload as a directory listing.
func (fs *FS) ReadDir(inumber uint32) (*dirent.Dir, error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return nil, err
	}
	if p.Kind() != blockcodec.KindDir {
		return nil, errs.ErrNotADirectory
	}
	buf := make([]byte, p.Size())
	r := ioiter.NewReader(fs.dev, p)
	if _, err := r.Read(buf); err != nil && len(buf) > 0 {
		return nil, err
	}
	return dirent.Decode(buf), nil
}

// writeDir truncates inumber to zero length and rewrites its full payload
// from d, exactly the sequence §4.10 requires to avoid stale tail bytes.
func (fs *FS) writeDir(inumber uint32, d *dirent.Dir) error {
	if err := fs.Truncate(inumber, 0); err != nil {
		return err
	}
	payload := d.Encode()
	if len(payload) == 0 {
		return nil
	}
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return err
	}
	w := ioiter.NewWriter(fs.dev, p, fs.bm.Allocate)
	w.Seek(0)
	_, err = w.Write(payload)
	fs.persistSuperblock()
	return err
}

// Lookup resolves name within the directory inode parent.
func (fs *FS) Lookup(parent uint32, name string) (uint32, error) {
	d, err := fs.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	return d.Lookup(name)
}

// MakeEntry creates a fresh regular-file inode and binds it to name inside
// the directory inode parent.
func (fs *FS) MakeEntry(parent uint32, name string) (uint32, error) {
	d, err := fs.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	inum, err := fs.Create()
	if err != nil {
		return 0, err
	}
	if err := d.Insert(name, inum); err != nil {
		return 0, err
	}
	if err := fs.writeDir(parent, d); err != nil {
		return 0, err
	}
	return inum, nil
}

// MakeDir creates a fresh directory inode, seeds it with "."/".." and binds
// it to name inside the directory inode parent.
func (fs *FS) MakeDir(parent uint32, name string) (uint32, error) {
	d, err := fs.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	inum, err := fs.CreateDir()
	if err != nil {
		return 0, err
	}
	if err := fs.writeDir(inum, dirent.New(inum, parent)); err != nil {
		return 0, err
	}
	if err := d.Insert(name, inum); err != nil {
		return 0, err
	}
	if err := fs.writeDir(parent, d); err != nil {
		return 0, err
	}
	return inum, nil
}

// Unlink removes name from the directory inode parent and deallocates the
// inode it named.
func (fs *FS) Unlink(parent uint32, name string) error {
	d, err := fs.ReadDir(parent)
	if err != nil {
		return err
	}
	inum, err := d.Lookup(name)
	if err != nil {
		return err
	}
	if err := d.Remove(name); err != nil {
		return err
	}
	if err := fs.writeDir(parent, d); err != nil {
		return err
	}
	return fs.Remove(inum)
}

// Rename moves name from oldParent to newName under newParent, which may
// be the same directory.
func (fs *FS) Rename(oldParent uint32, name string, newParent uint32, newName string) error {
	oldDir, err := fs.ReadDir(oldParent)
	if err != nil {
		return err
	}
	inum, err := oldDir.Lookup(name)
	if err != nil {
		return err
	}
	if err := oldDir.Remove(name); err != nil {
		return err
	}
	if oldParent == newParent {
		if err := oldDir.Insert(newName, inum); err != nil {
			return err
		}
		return fs.writeDir(oldParent, oldDir)
	}

	newDir, err := fs.ReadDir(newParent)
	if err != nil {
		return err
	}
	if err := newDir.Insert(newName, inum); err != nil {
		return err
	}
	if err := fs.writeDir(oldParent, oldDir); err != nil {
		return err
	}
	return fs.writeDir(newParent, newDir)
}

// SetMode stamps an inode's permission/ownership metadata. blockfs performs
// no permission enforcement (spec non-goal); this only makes the bits
// available for getattr/setattr round trips through the fuse adapter.
func (fs *FS) SetMode(inumber uint32, mode, uid, gid uint16) error {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return err
	}
	return p.SetMode(mode, uid, gid)
}

// Mode reports an inode's stamped permission/ownership metadata.
func (fs *FS) Mode(inumber uint32) (mode, uid, gid uint16, err error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return 0, 0, 0, err
	}
	return p.Mode(), p.UID(), p.GID(), nil
}

// Kind reports whether inumber names a regular file or a directory.
func (fs *FS) Kind(inumber uint32) (blockcodec.Kind, error) {
	p, err := fs.il.Proxy(inumber)
	if err != nil {
		return blockcodec.KindNone, err
	}
	return p.Kind(), nil
}

// InodeSummary is one row of Debug's inode-table dump.
type InodeSummary struct {
	Inumber uint32
	Kind    blockcodec.Kind
	Size    uint32
	Blocks  uint32
}

// Debug reports the superblock fields and a summary of every currently
// valid inode, the data the CLI's debug command and the fuse adapter's
// diagnostics are built from.
func (fs *FS) Debug() (sb blockcodec.Superblock, inodes []InodeSummary) {
	sb = fs.sb
	for inum := uint32(1); inum <= fs.sb.Inodes; inum++ {
		p, err := fs.il.Proxy(inum)
		if err != nil {
			continue
		}
		inodes = append(inodes, InodeSummary{
			Inumber: inum,
			Kind:    p.Kind(),
			Size:    p.Size(),
			Blocks:  p.TotalDataBlocks(),
		})
	}
	return sb, inodes
}

// VolumeUUID reports the UUID stamped into the superblock at format time.
func (fs *FS) VolumeUUID() [16]byte { return fs.sb.VolumeUUID }

// Equal reports whether two mounted filesystems have structurally
// identical superblocks and inode tables, grounded on the teacher's own
// FileSystem.Equal comparison helper.
func (fs *FS) Equal(other *FS) bool {
	if fs.sb != other.sb {
		return false
	}
	a, b := fs.mustDebugInodes(), other.mustDebugInodes()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (fs *FS) mustDebugInodes() []InodeSummary {
	_, inodes := fs.Debug()
	return inodes
}
