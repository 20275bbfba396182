package blockdev

import (
	"testing"

	"github.com/blockfs/blockfs/testhelper"
)

// This file lives in package blockdev (not blockdev_test) so it can build a
// Device directly over a testhelper.FileImpl fixture, exercising backend
// error paths a real temp-file backend never produces on demand.

func fixtureDevice(t *testing.T, nblocks uint32, readOnly bool) *Device {
	t.Helper()
	data := make([]byte, int64(nblocks)*BlockSize)
	fixture := &testhelper.FileImpl{
		ReadOnly: readOnly,
		Reader: func(b []byte, offset int64) (int, error) {
			return copy(b, data[offset:]), nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			return copy(data[offset:], b), nil
		},
	}
	return &Device{storage: fixture, blocks: nblocks}
}

func TestWriteBlockPanicsOnReadOnlyBackend(t *testing.T) {
	dev := fixtureDevice(t, 2, true)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic writing through a read-only backend")
		}
	}()
	dev.WriteBlock(0, make([]byte, BlockSize))
}

func TestSyncFallsBackCleanlyWithoutOsFile(t *testing.T) {
	dev := fixtureDevice(t, 1, false)
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
