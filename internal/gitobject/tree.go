package gitobject

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/goabstract/gitdir/internal/githash"
)

// EntryMode is the mode of an entry inside a tree.
type EntryMode int32

// The entry modes this server emits. ModeGitLink (submodules) is never
// produced — out of scope.
const (
	// ModeFile is a regular, non-executable file.
	ModeFile EntryMode = 0o100644
	// ModeExecutable is a file with the owner-execute bit set.
	ModeExecutable EntryMode = 0o100755
	// ModeDirectory points at a subtree.
	ModeDirectory EntryMode = 0o040000
	// ModeSymlink is a symbolic link; its blob payload is the link target.
	ModeSymlink EntryMode = 0o120000
)

// TreeEntry is one line of a tree object: a name, the mode it was stored
// with, and the SHA-1 of the blob or subtree it points to.
type TreeEntry struct {
	Name string
	ID   githash.Oid
	Mode EntryMode
}

// Tree is a directory listing: a sorted set of entries, each either a
// blob (file, executable, symlink) or another tree (subdirectory).
type Tree struct {
	rawObject *Object
	entries   []TreeEntry
}

// NewTree builds a tree object from its entries. Entries are sorted
// before serialization as Git itself sorts them: byte-lexicographically,
// but treating a directory entry's name as if it had a trailing '/'. Some
// clients (fsck, in particular) reject a tree that doesn't honor this
// exact order.
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return compareEntryNames(sorted[i], sorted[j]) < 0
	})

	t := &Tree{entries: sorted}
	t.rawObject = t.toObject()
	return t
}

// compareEntryNames orders two tree entries the way Git's own tree
// writer does: byte-lexicographically, except that where one name runs
// out before the other, a directory's missing byte compares as '/'
// rather than as the end of the string. Without this, a directory "foo"
// and a file "foo.txt" would sort in the wrong relative order, since '.'
// sorts below '/'.
func compareEntryNames(a, b TreeEntry) int {
	minLen := len(a.Name)
	if len(b.Name) < minLen {
		minLen = len(b.Name)
	}
	for i := 0; i < minLen; i++ {
		if a.Name[i] != b.Name[i] {
			return int(a.Name[i]) - int(b.Name[i])
		}
	}
	return nameByteAt(a.Name, a.Mode, minLen) - nameByteAt(b.Name, b.Mode, minLen)
}

// nameByteAt returns the byte at index i of name, or the virtual byte
// that follows it once name is exhausted: '/' for a directory, and -1
// (sorting before any real byte and before a directory's '/') otherwise.
func nameByteAt(name string, mode EntryMode, i int) int {
	if i < len(name) {
		return int(name[i])
	}
	if mode == ModeDirectory {
		return int('/')
	}
	return -1
}

// Entries returns a copy of the tree's entries, in their stored
// (sorted) order.
func (t *Tree) Entries() []TreeEntry {
	out := make([]TreeEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ID returns the tree object's SHA-1 name.
func (t *Tree) ID() githash.Oid {
	return t.rawObject.ID()
}

// ToObject returns the tree's underlying Object.
func (t *Tree) ToObject() *Object {
	return t.rawObject
}

// toObject serializes the tree's entries into a single object payload:
// a concatenation of "mode SP name NUL raw-sha1" records.
func (t *Tree) toObject() *Object {
	buf := new(bytes.Buffer)
	for _, e := range t.entries {
		buf.WriteString(strconv.FormatInt(int64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	return New(KindTree, buf.Bytes())
}
