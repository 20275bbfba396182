package blockdev_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/blockfs/blockfs/blockdev"
)

func tmpPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "image.blockfs")
}

func TestOpenCreatesSizedImage(t *testing.T) {
	path := tmpPath(t)
	dev, err := blockdev.Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if got, want := dev.Blocks(), uint32(16); got != want {
		t.Fatalf("Blocks() = %d, want %d", got, want)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got, want := fi.Size(), int64(16*blockdev.BlockSize); got != want {
		t.Fatalf("image size = %d, want %d", got, want)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev, err := blockdev.Open(tmpPath(t), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	want := bytes.Repeat([]byte{0xAB}, blockdev.BlockSize)
	dev.WriteBlock(2, want)

	got := make([]byte, blockdev.BlockSize)
	dev.ReadBlock(2, got)
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch at block 2")
	}

	// unwritten block reads as zero
	zero := make([]byte, blockdev.BlockSize)
	dev.ReadBlock(0, zero)
	for i, b := range zero {
		if b != 0 {
			t.Fatalf("expected block 0 to read back zeroed, byte %d = %x", i, b)
		}
	}
}

func TestReadBlockOutOfRangePanics(t *testing.T) {
	dev, err := blockdev.Open(tmpPath(t), 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading out-of-range block")
		}
	}()
	buf := make([]byte, blockdev.BlockSize)
	dev.ReadBlock(2, buf)
}

func TestWriteBlockWrongSizePanics(t *testing.T) {
	dev, err := blockdev.Open(tmpPath(t), 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic writing undersized buffer")
		}
	}()
	dev.WriteBlock(0, make([]byte, 10))
}

func TestMountUnmountCounters(t *testing.T) {
	dev, err := blockdev.Open(tmpPath(t), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if dev.Mounted() {
		t.Fatal("fresh device should not be mounted")
	}
	dev.Mount()
	dev.Mount()
	if got, want := dev.MountCount(), int32(2); got != want {
		t.Fatalf("MountCount() = %d, want %d", got, want)
	}
	dev.Unmount()
	if !dev.Mounted() {
		t.Fatal("device should still be mounted after one unmount of two mounts")
	}
	dev.Unmount()
	if dev.Mounted() {
		t.Fatal("device should not be mounted after balanced unmounts")
	}
	dev.Unmount()
	if dev.MountCount() != 0 {
		t.Fatal("extra unmount should not go negative")
	}
}

func TestSyncSucceedsOnFileBackend(t *testing.T) {
	dev, err := blockdev.Open(tmpPath(t), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
