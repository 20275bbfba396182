package fsengine_test

import (
	"path/filepath"
	"testing"

	"github.com/blockfs/blockfs/blockcodec"
	"github.com/blockfs/blockfs/blockdev"
	"github.com/blockfs/blockfs/errs"
	"github.com/blockfs/blockfs/fsengine"
)

func tmpDev(t *testing.T, nblocks uint32) *blockdev.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.blockfs")
	dev, err := blockdev.Open(path, nblocks)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

// formatWithRoot formats a fresh volume and seeds its root directory via
// EnsureRoot, for tests that exercise path-based operations (MakeEntry,
// MakeDir, Lookup, Rename) against fsengine.RootInumber. Format itself
// deliberately does not do this; see TestFormatMatchesScenarioOne.
func formatWithRoot(t *testing.T, nblocks uint32) *fsengine.FS {
	t.Helper()
	fs, err := fsengine.Format(tmpDev(t, nblocks), [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if _, err := fs.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	return fs
}

// TestFormatMatchesScenarioOne locks in spec.md §8 scenario 1 literally:
// formatting a 20-block volume and reading Debug() back must show
// inodes=0, current_block_index=4, free_blocks=0, free_inodes=0, with no
// inode summaries at all. Format allocates nothing; it only initializes
// the superblock and the empty inode/free-list structures.
func TestFormatMatchesScenarioOne(t *testing.T) {
	dev := tmpDev(t, 20)
	fs, err := fsengine.Format(dev, [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	sb, inodes := fs.Debug()
	if sb.Blocks != 20 {
		t.Fatalf("blocks = %d, want 20", sb.Blocks)
	}
	if sb.Inodes != 0 {
		t.Fatalf("inodes = %d, want 0", sb.Inodes)
	}
	if sb.CurrentBlockIndex != 4 {
		t.Fatalf("current_block_index = %d, want 4", sb.CurrentBlockIndex)
	}
	if sb.FreeBlocks != 0 {
		t.Fatalf("free_blocks = %d, want 0", sb.FreeBlocks)
	}
	if sb.FreeInodes != 0 {
		t.Fatalf("free_inodes = %d, want 0", sb.FreeInodes)
	}
	if len(inodes) != 0 {
		t.Fatalf("inode summaries = %v, want none", inodes)
	}
}

func TestEnsureRootSeedsDotAndDotDotIdempotently(t *testing.T) {
	dev := tmpDev(t, 64)
	fs, err := fsengine.Format(dev, [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	root, err := fs.EnsureRoot()
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	if root != fsengine.RootInumber {
		t.Fatalf("EnsureRoot = %d, want %d", root, fsengine.RootInumber)
	}

	d, err := fs.ReadDir(fsengine.RootInumber)
	if err != nil {
		t.Fatalf("ReadDir(root): %v", err)
	}
	entries := d.Entries()
	if len(entries) != 2 || entries[0].Name != "." || entries[1].Name != ".." {
		t.Fatalf("root entries = %v, want [. ..]", entries)
	}
	if entries[0].Inumber != fsengine.RootInumber || entries[1].Inumber != fsengine.RootInumber {
		t.Fatalf("root self/parent inumbers = %v, want both %d", entries, fsengine.RootInumber)
	}

	// Calling it again must not create a second root inode or duplicate entries.
	again, err := fs.EnsureRoot()
	if err != nil || again != fsengine.RootInumber {
		t.Fatalf("EnsureRoot (again) = (%d, %v), want (%d, nil)", again, err, fsengine.RootInumber)
	}
	_, inodes := fs.Debug()
	if len(inodes) != 1 {
		t.Fatalf("inode count after double EnsureRoot = %d, want 1", len(inodes))
	}
}

func TestMountRejectsUnformattedVolume(t *testing.T) {
	dev := tmpDev(t, 16)
	if _, err := fsengine.Mount(dev); err != errs.ErrBadMagic {
		t.Fatalf("Mount(unformatted) = %v, want ErrBadMagic", err)
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := formatWithRoot(t, 64)

	inum, err := fs.MakeEntry(fsengine.RootInumber, "hello.txt")
	if err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}

	payload := []byte("hello, blockfs")
	if n, err := fs.Write(inum, 0, payload); err != nil || n != len(payload) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(payload))
	}

	size, err := fs.Stat(inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if int(size) != len(payload) {
		t.Fatalf("Stat size = %d, want %d", size, len(payload))
	}

	got := make([]byte, len(payload))
	n, err := fs.Read(inum, 0, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) || string(got) != string(payload) {
		t.Fatalf("Read = (%q, %d), want (%q, %d)", got[:n], n, payload, len(payload))
	}

	if resolved, err := fs.Lookup(fsengine.RootInumber, "hello.txt"); err != nil || resolved != inum {
		t.Fatalf("Lookup(hello.txt) = (%d, %v), want (%d, nil)", resolved, err, inum)
	}
}

func TestWriteAcrossManyBlocksThenReadBack(t *testing.T) {
	fs := formatWithRoot(t, 256)
	inum, err := fs.MakeEntry(fsengine.RootInumber, "big.bin")
	if err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}

	payload := make([]byte, blockcodec.BlockSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := fs.Write(inum, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := fs.Read(inum, 0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %x, want %x", i, got[i], payload[i])
		}
	}
}

func TestTruncateShrinksAndFreesBlocks(t *testing.T) {
	dev := tmpDev(t, 64)
	fs, err := fsengine.Format(dev, [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	inum, err := fs.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := make([]byte, blockcodec.BlockSize*2)
	if _, err := fs.Write(inum, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, freeBefore := fs.Statfs()

	if err := fs.Truncate(inum, 10); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	size, err := fs.Stat(inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 10 {
		t.Fatalf("size after truncate = %d, want 10", size)
	}

	_, freeAfter := fs.Statfs()
	if freeAfter <= freeBefore {
		t.Fatalf("free blocks after shrink = %d, want > %d", freeAfter, freeBefore)
	}
}

func TestTruncateGrowsWithZeroPadding(t *testing.T) {
	dev := tmpDev(t, 64)
	fs, err := fsengine.Format(dev, [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	inum, err := fs.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(inum, 0, []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Truncate(inum, 6); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	got := make([]byte, 6)
	if _, err := fs.Read(inum, 0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte{'a', 'b', 'c', 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Read = %v, want %v", got, want)
		}
	}
}

func TestRemoveThenLookupFails(t *testing.T) {
	fs := formatWithRoot(t, 64)
	inum, err := fs.MakeEntry(fsengine.RootInumber, "gone.txt")
	if err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}
	if err := fs.Unlink(fsengine.RootInumber, "gone.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fs.Lookup(fsengine.RootInumber, "gone.txt"); err != errs.ErrNotFound {
		t.Fatalf("Lookup(gone.txt) = %v, want ErrNotFound", err)
	}
	if _, err := fs.Stat(inum); err != errs.ErrInvalidInode {
		t.Fatalf("Stat(removed) = %v, want ErrInvalidInode", err)
	}
}

func TestMakeDirNestsAndRename(t *testing.T) {
	fs := formatWithRoot(t, 64)
	sub, err := fs.MakeDir(fsengine.RootInumber, "sub")
	if err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	file, err := fs.MakeEntry(sub, "a.txt")
	if err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}

	if err := fs.Rename(sub, "a.txt", fsengine.RootInumber, "a.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fs.Lookup(sub, "a.txt"); err != errs.ErrNotFound {
		t.Fatalf("Lookup in old dir = %v, want ErrNotFound", err)
	}
	if resolved, err := fs.Lookup(fsengine.RootInumber, "a.txt"); err != nil || resolved != file {
		t.Fatalf("Lookup in new dir = (%d, %v), want (%d, nil)", resolved, err, file)
	}
}

func TestMountAfterUnmountPreservesData(t *testing.T) {
	dev := tmpDev(t, 64)
	fs, err := fsengine.Format(dev, [16]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if _, err := fs.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	inum, err := fs.MakeEntry(fsengine.RootInumber, "persisted.txt")
	if err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}
	if _, err := fs.Write(inum, 0, []byte("durable")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	reopened, err := fsengine.Mount(dev)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	resolved, err := reopened.Lookup(fsengine.RootInumber, "persisted.txt")
	if err != nil || resolved != inum {
		t.Fatalf("Lookup after remount = (%d, %v), want (%d, nil)", resolved, err, inum)
	}
	got := make([]byte, len("durable"))
	if _, err := reopened.Read(resolved, 0, got); err != nil || string(got) != "durable" {
		t.Fatalf("Read after remount = (%q, %v), want (durable, nil)", got, err)
	}
}
