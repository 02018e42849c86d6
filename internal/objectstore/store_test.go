package objectstore_test

import (
	"testing"

	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	t.Parallel()

	s := objectstore.New(0)
	blob := gitobject.NewBlob([]byte("hello\n"))
	oid := s.Put(blob)

	assert.True(t, s.Has(oid))
	loose, ok := s.Get(oid)
	require.True(t, ok)
	assert.Equal(t, blob.Loose(), loose)
}

func TestPutIsIdempotent(t *testing.T) {
	t.Parallel()

	s := objectstore.New(0)
	blobA := gitobject.NewBlob([]byte("same content"))
	blobB := gitobject.NewBlob([]byte("same content"))

	oidA := s.Put(blobA)
	oidB := s.Put(blobB)

	assert.Equal(t, oidA, oidB)
	assert.Equal(t, 1, s.Len())
}

func TestGetParsed(t *testing.T) {
	t.Parallel()

	s := objectstore.New(0)
	blob := gitobject.NewBlob([]byte("content"))
	oid := s.Put(blob)

	parsed, ok := s.GetParsed(oid)
	require.True(t, ok)
	assert.Equal(t, gitobject.KindBlob, parsed.Kind)
	assert.Equal(t, []byte("content"), parsed.Payload)

	// second call should hit the cache path
	parsed2, ok := s.GetParsed(oid)
	require.True(t, ok)
	assert.Equal(t, parsed, parsed2)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := objectstore.New(0)
	_, ok := s.Get(gitobject.NewBlob([]byte("nope")).ID())
	assert.False(t, ok)
}
