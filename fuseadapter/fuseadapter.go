// Package fuseadapter implements the host-OS userspace-filesystem adapter
// (spec.md §6's second "external collaborator" table), translating
// github.com/jacobsa/fuse/fuseutil.FileSystem callbacks into fsengine
// facade calls. Grounded on distr1-distri's internal/fuse (jacobsa/fuse
// wiring against a read-only squashfs) and the gcsfuse FUSE stack, the two
// pack repos that actually exercise this dependency.
package fuseadapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/sirupsen/logrus"

	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/errs"
	"github.com/blockfs/blockfs/fsengine"
)

var log logrus.FieldLogger = logrus.StandardLogger()

// FileSystem adapts one mounted fsengine.FS to fuseutil.FileSystem.
// fuseops.InodeID and blockfs inumbers are the same space: both reserve 1
// for the root, so no translation table is needed. mu serializes every
// callback, standing in for the mount-wide mutual-exclusion lock spec.md
// §5 requires of the host-OS side.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	mu   sync.Mutex
	core *fsengine.FS
}

// Mount brings up core as a live FUSE mount at mountpoint and blocks until
// the mount is unmounted or fails. Unlike the plain inumber-addressed CLI,
// every FUSE callback resolves paths starting from a root directory inode,
// so Mount seeds one via EnsureRoot if Format never ran one — blockfs's
// own format command leaves inodes=0 per spec.md §8 scenario 1.
func Mount(core *fsengine.FS, mountpoint string) error {
	if _, err := core.EnsureRoot(); err != nil {
		return fmt.Errorf("fuseadapter: ensure root directory: %w", err)
	}
	server := fuseutil.NewFileSystemServer(&FileSystem{core: core})
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{})
	if err != nil {
		return err
	}
	return mfs.Join(context.Background())
}

// translateErr maps a facade sentinel error to the syscall errno FUSE
// expects back, per spec.md §7's InvalidInode/NotFound -> ENOENT,
// NoSpace -> ENOSPC table.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrInvalidInode), errors.Is(err, errs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, errs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, errs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, errs.ErrNoSpace):
		return syscall.ENOSPC
	default:
		return err
	}
}

func (f *FileSystem) attrsFor(inumber uint32) (fuseops.InodeAttributes, error) {
	kind, err := f.core.Kind(inumber)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	size, err := f.core.Stat(inumber)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	mode, uid, gid, err := f.core.Mode(inumber)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	fm := os.FileMode(mode) & os.ModePerm
	if fm == 0 {
		fm = 0o644
	}
	if kind == blockcodec.KindDir {
		fm = os.ModeDir | (fm | 0o111)
	}
	return fuseops.InodeAttributes{
		Size:  uint64(size),
		Nlink: 1,
		Mode:  fm,
		Uid:   uint32(uid),
		Gid:   uint32(gid),
	}, nil
}

// LookUpInode implements directory codec lookup, spec.md §6's lookup(parent, name).
func (f *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inum, err := f.core.Lookup(uint32(op.Parent), op.Name)
	if err != nil {
		return translateErr(err)
	}
	attrs, err := f.attrsFor(inum)
	if err != nil {
		return translateErr(err)
	}
	op.Entry.Child = fuseops.InodeID(inum)
	op.Entry.Attributes = attrs
	return nil
}

// GetInodeAttributes implements getattr(ino).
func (f *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	attrs, err := f.attrsFor(uint32(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	op.Attributes = attrs
	return nil
}

// SetInodeAttributes implements setattr(ino, ...): size changes truncate
// through the facade, mode/uid/gid changes stamp the inode's metadata
// fields. blockfs enforces no permissions (spec non-goal); this is a pure
// bookkeeping passthrough.
func (f *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inum := uint32(op.Inode)
	if op.Size != nil {
		if err := f.core.Truncate(inum, uint32(*op.Size)); err != nil {
			return translateErr(err)
		}
	}
	if op.Mode != nil {
		_, uid, gid, err := f.core.Mode(inum)
		if err != nil {
			return translateErr(err)
		}
		if err := f.core.SetMode(inum, uint16(*op.Mode&os.ModePerm), uid, gid); err != nil {
			return translateErr(err)
		}
	}
	attrs, err := f.attrsFor(inum)
	if err != nil {
		return translateErr(err)
	}
	op.Attributes = attrs
	return nil
}

func (f *FileSystem) createChild(parent fuseops.InodeID, name string, entry *fuseops.ChildInodeEntry) error {
	inum, err := f.core.MakeEntry(uint32(parent), name)
	if err != nil {
		return translateErr(err)
	}
	attrs, err := f.attrsFor(inum)
	if err != nil {
		return translateErr(err)
	}
	entry.Child = fuseops.InodeID(inum)
	entry.Attributes = attrs
	return nil
}

// MkNode implements mknod: inode create + directory codec insert.
func (f *FileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createChild(op.Parent, op.Name, &op.Entry)
}

// CreateFile implements create: inode create + directory codec insert.
func (f *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createChild(op.Parent, op.Name, &op.Entry)
}

// MkDir implements mkdir: create_dir + directory codec insert + seeding the
// new child with "." and "..".
func (f *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inum, err := f.core.MakeDir(uint32(op.Parent), op.Name)
	if err != nil {
		return translateErr(err)
	}
	attrs, err := f.attrsFor(inum)
	if err != nil {
		return translateErr(err)
	}
	op.Entry.Child = fuseops.InodeID(inum)
	op.Entry.Attributes = attrs
	return nil
}

// Unlink implements unlink: directory codec remove + remove(inumber).
func (f *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return translateErr(f.core.Unlink(uint32(op.Parent), op.Name))
}

// RmDir removes an empty directory the same way Unlink removes a file:
// blockfs's directory codec carries no child count of its own, so an
// empty check against "." and ".." only is sufficient.
func (f *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inum, err := f.core.Lookup(uint32(op.Parent), op.Name)
	if err != nil {
		return translateErr(err)
	}
	d, err := f.core.ReadDir(inum)
	if err != nil {
		return translateErr(err)
	}
	if len(d.Entries()) > 2 {
		return syscall.ENOTEMPTY
	}
	return translateErr(f.core.Unlink(uint32(op.Parent), op.Name))
}

// ReadFile implements the facade's byte-granular read.
func (f *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.core.Read(uint32(op.Inode), uint32(op.Offset), op.Dst)
	op.BytesRead = n
	if err != nil {
		return translateErr(err)
	}
	return nil
}

// WriteFile implements the facade's byte-granular write.
func (f *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := f.core.Write(uint32(op.Inode), uint32(op.Offset), op.Data)
	return translateErr(err)
}

// ReadDir implements readdir: directory codec decode, then iterate.
func (f *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, err := f.core.ReadDir(uint32(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	entries := d.Entries()

	written := 0
	for i := int(op.Offset); i < len(entries); i++ {
		e := entries[i]
		dt := fuseutil.DT_File
		if kind, err := f.core.Kind(e.Inumber); err == nil && kind == blockcodec.KindDir {
			dt = fuseutil.DT_Directory
		}
		n := fuseutil.WriteDirent(op.Dst[written:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.Inumber),
			Name:   e.Name,
			Type:   dt,
		})
		if n == 0 {
			break
		}
		written += n
	}
	op.BytesRead = written
	return nil
}

// Rename implements rename: directory codec remove + insert, possibly
// across two different directory inodes.
func (f *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return translateErr(f.core.Rename(uint32(op.OldParent), op.OldName, uint32(op.NewParent), op.NewName))
}

// StatFS exposes (blocks, blocks - current_block_index + free_blocks).
func (f *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blocks, free := f.core.Statfs()
	op.BlockSize = blockcodec.BlockSize
	op.IoSize = blockcodec.BlockSize
	op.Blocks = uint64(blocks)
	op.BlocksFree = uint64(free)
	op.BlocksAvailable = uint64(free)
	return nil
}

// The remaining callbacks are handle/lifecycle bookkeeping blockfs has no
// state for: one buffer per iterator (spec non-goal: no cache) means every
// read/write/readdir re-derives what it needs from the facade, so open and
// release are no-ops.

func (f *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error  { return nil }
func (f *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error { return nil }
func (f *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}
func (f *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
func (f *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error { return nil }
func (f *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

func (f *FileSystem) Destroy() {
	log.Debug("fuse filesystem destroyed")
}
