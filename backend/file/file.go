// Package file implements backend.Storage over an *os.File: either a
// plain disk-image file or a path to an actual block device.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/blockfs/blockfs/backend"
)

type osBackend struct {
	f        *os.File
	readOnly bool
}

var _ backend.Storage = (*osBackend)(nil)

// Open opens an existing disk image or block device at pathName.
func Open(pathName string, readOnly bool) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass a device or file path")
	}
	mode := os.O_RDONLY
	if !readOnly {
		mode = os.O_RDWR
	}
	f, err := os.OpenFile(pathName, mode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", pathName, err)
	}
	return &osBackend{f: f, readOnly: readOnly}, nil
}

// Create creates a new disk-image file at pathName, sized to size bytes.
// It is an error for pathName to already exist.
func Create(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass a device or file path")
	}
	if size <= 0 {
		return nil, errors.New("must pass a positive size")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create %s: %w", pathName, err)
	}
	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("could not size %s to %d bytes: %w", pathName, size, err)
	}
	return &osBackend{f: f}, nil
}

func (b *osBackend) Sys() (*os.File, error) {
	return b.f, nil
}

func (b *osBackend) Writable() (backend.WritableFile, error) {
	if b.readOnly {
		return nil, backend.ErrIncorrectOpenMode
	}
	return b.f, nil
}

func (b *osBackend) Stat() (fs.FileInfo, error) { return b.f.Stat() }
func (b *osBackend) Read(p []byte) (int, error) { return b.f.Read(p) }
func (b *osBackend) Close() error               { return b.f.Close() }

func (b *osBackend) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

func (b *osBackend) Seek(offset int64, whence int) (int64, error) {
	return b.f.Seek(offset, whence)
}

var _ io.ReaderAt = (*osBackend)(nil)
