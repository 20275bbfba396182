// Package errs defines the sentinel error kinds shared across the block
// filesystem engine, mirroring the small sentinel-error blocks used by
// github.com/diskfs/go-diskfs (filesystem.ErrNotSupported / ErrNotImplemented
// / ErrReadonlyFilesystem, backend.ErrIncorrectOpenMode / ErrNotSuitable).
package errs

import "errors"

var (
	// ErrNoSpace is returned when the block or inode allocator is exhausted.
	ErrNoSpace = errors.New("blockfs: no space left on device")
	// ErrInvalidInode is returned when an inumber is out of range or its slot is not valid.
	ErrInvalidInode = errors.New("blockfs: invalid inode")
	// ErrBadMagic is returned by Mount against an unformatted or foreign volume.
	ErrBadMagic = errors.New("blockfs: bad magic number")
	// ErrNotFound is returned when a directory lookup misses.
	ErrNotFound = errors.New("blockfs: directory entry not found")
	// ErrNotADirectory is returned when a directory operation targets a regular file.
	ErrNotADirectory = errors.New("blockfs: not a directory")
	// ErrExists is returned when a directory entry insertion would shadow an existing name.
	ErrExists = errors.New("blockfs: entry already exists")
)
