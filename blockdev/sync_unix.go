//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Sync forces the backend's file descriptor to durable storage via fsync(2).
// Backends without an underlying *os.File (e.g. test fixtures) report
// backend.ErrNotSuitable and Sync treats that as a no-op.
func (d *Device) Sync() error {
	f, err := d.storage.Sys()
	if err != nil {
		return nil
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return fmt.Errorf("blockdev: fsync: %w", err)
	}
	return nil
}
