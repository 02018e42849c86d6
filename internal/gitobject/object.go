// Package gitobject builds the three kinds of Git object this server ever
// produces — blobs, trees and commits — and computes their SHA-1 names.
// Unlike a full Git implementation this package never parses foreign
// objects back: every object here is synthesized from scratch.
package gitobject

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strconv"
	"sync"

	"github.com/goabstract/gitdir/internal/errutil"
	"github.com/goabstract/gitdir/internal/githash"
	"golang.org/x/xerrors"
)

// Kind represents the type of a git object as stored in a packfile.
type Kind int8

// The object kinds this server builds. Tags are out of scope.
const (
	KindCommit Kind = 1
	KindTree   Kind = 2
	KindBlob   Kind = 3
)

// String returns the lowercase textual name used in an object's loose form.
func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	default:
		panic(fmt.Sprintf("unknown object kind %d", k))
	}
}

// Object is a Git object: a kind, a payload, and the SHA-1 name derived
// from both. The name is computed lazily and memoized, since most
// objects are built bottom-up and only need a name once their parent
// references them.
type Object struct {
	kind    Kind
	content []byte

	id     githash.Oid
	idOnce sync.Once
}

// New wraps raw content as an object of the given kind.
func New(kind Kind, content []byte) *Object {
	return &Object{kind: kind, content: content}
}

// ID returns the object's SHA-1 name, computing it on first call.
func (o *Object) ID() githash.Oid {
	o.idOnce.Do(func() {
		o.id = githash.Sum(o.Loose())
	})
	return o.id
}

// Kind returns the object's kind.
func (o *Object) Kind() Kind {
	return o.kind
}

// Size returns the size of the object's payload.
func (o *Object) Size() int {
	return len(o.content)
}

// Bytes returns the object's raw payload (without the loose-form header).
func (o *Object) Bytes() []byte {
	return o.content
}

// Loose returns the object's canonical serialization:
// "<kind> <decimal-length>\x00<payload>".
func (o *Object) Loose() []byte {
	w := new(bytes.Buffer)
	w.Grow(len(o.content) + 32)
	w.WriteString(o.kind.String())
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(o.Size()))
	w.WriteByte(0)
	w.Write(o.content)
	return w.Bytes()
}

// Compress zlib-compresses the object's loose form, the format used for
// on-disk loose objects under .git/objects/xx/yyyy...
func (o *Object) Compress() (data []byte, err error) {
	buf := new(bytes.Buffer)
	zw := zlib.NewWriter(buf)

	_, err = zw.Write(o.Loose())
	// closing flushes the rest of the zlib stream into buf, so it must
	// happen before buf is read
	errutil.Close(zw, &err)
	if err != nil {
		return nil, xerrors.Errorf("could not zlib object: %w", err)
	}
	return buf.Bytes(), nil
}
