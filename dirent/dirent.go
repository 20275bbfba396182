// Package dirent implements the directory codec (spec component C10): a
// directory inode's byte stream is a length-prefixed, insertion-ordered
// sequence of name/inumber pairs. The encode/decode pair here plays the
// same role as the teacher's directory entry codecs (see
// filesystem/ext4/directoryentry.go and filesystem/fat32/directory.go):
// fixed, versionless record layout, no schema evolution.
package dirent

import (
	"encoding/binary"

	"github.com/blockfs/blockfs/errs"
)

// Entry is one name/inumber pair in a directory's payload.
type Entry struct {
	Name    string
	Inumber uint32
}

// Dir is the decoded form of a directory inode's byte stream: an ordered
// list of entries. A Dir built by New starts with "." and ".."; one decoded
// from an empty payload has no entries.
type Dir struct {
	entries []Entry
}

// New creates a fresh directory payload seeded with "." and "..".
func New(self, parent uint32) *Dir {
	return &Dir{entries: []Entry{
		{Name: ".", Inumber: self},
		{Name: "..", Inumber: parent},
	}}
}

// Decode parses a directory inode's raw byte stream. An empty payload
// decodes to an empty (entry-less) Dir, matching a create_dir that skipped
// writing its own "."/".." seed.
func Decode(data []byte) *Dir {
	var entries []Entry
	i := 0
	for i < len(data) {
		if i+1 > len(data) {
			break
		}
		nameLen := int(data[i])
		i++
		if i+nameLen+4 > len(data) {
			break
		}
		name := string(data[i : i+nameLen])
		i += nameLen
		inum := binary.LittleEndian.Uint32(data[i : i+4])
		i += 4
		entries = append(entries, Entry{Name: name, Inumber: inum})
	}
	return &Dir{entries: entries}
}

// Encode renders the directory back to its on-disk byte stream, in the
// same order entries were inserted.
func (d *Dir) Encode() []byte {
	size := 0
	for _, e := range d.entries {
		size += 1 + len(e.Name) + 4
	}
	out := make([]byte, 0, size)
	for _, e := range d.entries {
		out = append(out, byte(len(e.Name)))
		out = append(out, e.Name...)
		var num [4]byte
		binary.LittleEndian.PutUint32(num[:], e.Inumber)
		out = append(out, num[:]...)
	}
	return out
}

// Entries returns the directory's entries in stable, insertion order.
func (d *Dir) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Lookup returns the inumber bound to name, or errs.ErrNotFound.
func (d *Dir) Lookup(name string) (uint32, error) {
	for _, e := range d.entries {
		if e.Name == name {
			return e.Inumber, nil
		}
	}
	return 0, errs.ErrNotFound
}

// Insert adds a new name/inumber binding, or errs.ErrExists if name is
// already present.
func (d *Dir) Insert(name string, inumber uint32) error {
	if _, err := d.Lookup(name); err == nil {
		return errs.ErrExists
	}
	d.entries = append(d.entries, Entry{Name: name, Inumber: inumber})
	return nil
}

// Remove deletes name's binding, preserving the order of the remaining
// entries, or returns errs.ErrNotFound if name is absent.
func (d *Dir) Remove(name string) error {
	for i, e := range d.entries {
		if e.Name == name {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}
