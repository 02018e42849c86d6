// Package packfile encodes Git's v2 packfile binary format: the on-wire
// container for a commit, its tree(s), and their blobs. This package only
// writes packfiles — nothing in this server ever needs to read one back.
package packfile

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // sha1 is mandated by the packfile trailer format
	"encoding/binary"
	"errors"
	"io"

	"github.com/goabstract/gitdir/internal/cache"
	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/objectstore"
	"golang.org/x/xerrors"
)

// ErrObjectNotFound is returned when a root oid, or an object reachable
// from it, isn't present in the Object Store.
var ErrObjectNotFound = errors.New("object not found")

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

const packVersion = 2

// typeBits maps an object kind to the 3-bit type field of a packfile
// object header.
var typeBits = map[gitobject.Kind]byte{
	gitobject.KindCommit: 1,
	gitobject.KindTree:   2,
	gitobject.KindBlob:   3,
}

// defaultCacheSize bounds the number of previously built packfiles kept
// around, keyed by root commit oid.
const defaultCacheSize = 32

// Encoder builds packfiles from an Object Store, memoizing the result
// for a given root oid so a second clone of an already-served snapshot
// skips re-walking and re-compressing.
type Encoder struct {
	store *objectstore.Store
	cache *cache.LRU
}

// NewEncoder returns an Encoder reading objects from store.
func NewEncoder(store *objectstore.Store, cacheSize int) *Encoder {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Encoder{store: store, cache: cache.NewLRU(cacheSize)}
}

// Encode returns the packfile bytes for the object graph reachable from
// root: the commit itself, every tree it transitively references, and
// every blob those trees reference.
func (e *Encoder) Encode(root githash.Oid) ([]byte, error) {
	if cached, ok := e.cache.Get(root); ok {
		if b, valid := cached.([]byte); valid {
			return b, nil
		}
	}

	order, err := e.reachable(root)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	h := sha1.New() //nolint:gosec
	w := io.MultiWriter(buf, h)

	header := make([]byte, 12)
	copy(header[0:4], packMagic[:])
	binary.BigEndian.PutUint32(header[4:8], packVersion)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(order)))
	if _, err := w.Write(header); err != nil {
		return nil, xerrors.Errorf("writing packfile header: %w", err)
	}

	for _, oid := range order {
		parsed, ok := e.store.GetParsed(oid)
		if !ok {
			return nil, xerrors.Errorf("%s: %w", oid, ErrObjectNotFound)
		}
		if err := writeObject(w, parsed); err != nil {
			return nil, xerrors.Errorf("writing object %s: %w", oid, err)
		}
	}

	sum := h.Sum(nil)
	buf.Write(sum)

	packed := buf.Bytes()
	e.cache.Add(root, packed)
	return packed, nil
}

// reachable returns, in commit-then-trees-then-blobs order, every oid
// reachable from root. root must name a commit.
func (e *Encoder) reachable(root githash.Oid) ([]githash.Oid, error) {
	commit, ok := e.store.GetParsed(root)
	if !ok || commit.Kind != gitobject.KindCommit {
		return nil, xerrors.Errorf("%s: %w", root, ErrObjectNotFound)
	}

	treeID, err := commitTreeID(commit.Payload)
	if err != nil {
		return nil, err
	}

	order := []githash.Oid{root}
	trees := []githash.Oid{}
	blobs := []githash.Oid{}
	seen := map[githash.Oid]bool{root: true}

	var walkTree func(oid githash.Oid) error
	walkTree = func(oid githash.Oid) error {
		if seen[oid] {
			return nil
		}
		seen[oid] = true

		parsed, ok := e.store.GetParsed(oid)
		if !ok || parsed.Kind != gitobject.KindTree {
			return xerrors.Errorf("%s: %w", oid, ErrObjectNotFound)
		}
		trees = append(trees, oid)

		entries, err := parseTreeEntries(parsed.Payload)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.mode == gitobject.ModeDirectory {
				if err := walkTree(entry.id); err != nil {
					return err
				}
				continue
			}
			if seen[entry.id] {
				continue
			}
			seen[entry.id] = true
			if !e.store.Has(entry.id) {
				return xerrors.Errorf("%s: %w", entry.id, ErrObjectNotFound)
			}
			blobs = append(blobs, entry.id)
		}
		return nil
	}

	if err := walkTree(treeID); err != nil {
		return nil, err
	}

	order = append(order, trees...)
	order = append(order, blobs...)
	return order, nil
}

// writeObject emits one packfile object record: the variable-length
// type+size header followed by the zlib-compressed payload.
func writeObject(w io.Writer, parsed objectstore.Parsed) error {
	if _, err := w.Write(encodeHeader(parsed.Kind, len(parsed.Payload))); err != nil {
		return err
	}

	zw := zlib.NewWriter(w)
	if _, err := zw.Write(parsed.Payload); err != nil {
		return err
	}
	return zw.Close()
}

// encodeHeader builds the variable-length type+size header: the first
// byte's bits 6-4 hold the type, bits 3-0 the low 4 size bits; each
// subsequent byte contributes 7 more size bits, little-endian; the MSB
// of every byte but the last is set to signal continuation.
func encodeHeader(kind gitobject.Kind, size int) []byte {
	out := make([]byte, 0, 8)

	first := typeBits[kind]<<4 | byte(size&0x0f)
	size >>= 4
	if size > 0 {
		first |= 0x80
	}
	out = append(out, first)

	for size > 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
