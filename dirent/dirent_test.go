package dirent_test

import (
	"testing"

	"github.com/blockfs/blockfs/dirent"
	"github.com/blockfs/blockfs/errs"
)

func TestNewSeedsDotAndDotDot(t *testing.T) {
	d := dirent.New(2, 1)
	entries := d.Entries()
	if len(entries) != 2 || entries[0].Name != "." || entries[1].Name != ".." {
		t.Fatalf("New() entries = %v, want [. ..]", entries)
	}
	if entries[0].Inumber != 2 || entries[1].Inumber != 1 {
		t.Fatalf("unexpected inumbers: %v", entries)
	}
}

func TestInsertLookupRoundTripThroughEncodeDecode(t *testing.T) {
	d := dirent.New(2, 2)
	if err := d.Insert("a", 3); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := d.Insert("b", 4); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	raw := d.Encode()
	decoded := dirent.Decode(raw)

	got := decoded.Entries()
	want := []dirent.Entry{
		{Name: ".", Inumber: 2},
		{Name: "..", Inumber: 2},
		{Name: "a", Inumber: 3},
		{Name: "b", Inumber: 4},
	}
	if len(got) != len(want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Entries()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if inum, err := decoded.Lookup("a"); err != nil || inum != 3 {
		t.Fatalf("Lookup(a) = (%d, %v), want (3, nil)", inum, err)
	}
}

func TestInsertDuplicateNameFails(t *testing.T) {
	d := dirent.New(1, 1)
	if err := d.Insert(".", 99); err != errs.ErrExists {
		t.Fatalf("Insert(.) = %v, want ErrExists", err)
	}
}

func TestRemovePreservesOrderOfRemainingEntries(t *testing.T) {
	d := dirent.New(1, 1)
	_ = d.Insert("a", 2)
	_ = d.Insert("b", 3)
	_ = d.Insert("c", 4)

	if err := d.Remove("b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	names := []string{}
	for _, e := range d.Entries() {
		names = append(names, e.Name)
	}
	want := []string{".", "..", "a", "c"}
	if len(names) != len(want) {
		t.Fatalf("Entries names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Entries names = %v, want %v", names, want)
		}
	}
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	d := dirent.New(1, 1)
	if _, err := d.Lookup("nope"); err != errs.ErrNotFound {
		t.Fatalf("Lookup(nope) = %v, want ErrNotFound", err)
	}
}

func TestDecodeEmptyPayloadYieldsNoEntries(t *testing.T) {
	d := dirent.Decode(nil)
	if len(d.Entries()) != 0 {
		t.Fatalf("Decode(nil) entries = %v, want none", d.Entries())
	}
}
