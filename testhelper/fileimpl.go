// Package testhelper provides small in-memory backend.Storage fixtures for
// tests that need to drive error paths (I/O failures, read-only backends)
// that a real temp-file-backed backend.Storage cannot easily simulate.
package testhelper

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/blockfs/blockfs/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage by delegating reads and writes to
// caller-supplied functions, so a test can inject I/O failures that a real
// file-backed backend won't produce on demand.
type FileImpl struct {
	Reader   reader
	Writer   writer
	ReadOnly bool
}

var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (os.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt reads at a particular offset.
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt writes at a particular offset.
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek is not implemented; blockdev never seeks, it always uses ReadAt/WriteAt.
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

// Sys reports ErrNotSuitable: a synthetic fixture has no underlying *os.File
// for blockdev.Device.Sync to fsync.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

// Writable returns the fixture itself, or ErrIncorrectOpenMode when ReadOnly
// is set, mirroring backend/file's real open-mode check.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	if f.ReadOnly {
		return nil, backend.ErrIncorrectOpenMode
	}
	return f, nil
}

var _ fs.File = (*FileImpl)(nil)
