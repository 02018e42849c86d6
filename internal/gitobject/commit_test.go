package gitobject_test

import (
	"strings"
	"testing"
	"time"

	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignature() gitobject.Signature {
	loc := time.FixedZone("", -6*60*60)
	return gitobject.Signature{
		Name:  "gitdir",
		Email: "gitdir@localhost",
		Time:  time.Unix(1000000000, 0).In(loc),
	}
}

func TestCommitHeaderOrder(t *testing.T) {
	t.Parallel()

	blob := gitobject.NewBlob([]byte("x"))
	tree := gitobject.NewTree([]gitobject.TreeEntry{
		{Name: "x", ID: blob.ID(), Mode: gitobject.ModeFile},
	})

	sig := testSignature()
	commit := gitobject.NewCommit(tree.ID(), nil, sig, gitobject.Signature{}, "snapshot\n")

	raw := string(commit.ToObject().Bytes())
	lines := strings.Split(raw, "\n")
	require.True(t, strings.HasPrefix(lines[0], "tree "))
	require.True(t, strings.HasPrefix(lines[1], "author "))
	require.True(t, strings.HasPrefix(lines[2], "committer "))
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "snapshot", lines[4])
}

func TestCommitWithParent(t *testing.T) {
	t.Parallel()

	blob := gitobject.NewBlob([]byte("x"))
	tree := gitobject.NewTree([]gitobject.TreeEntry{
		{Name: "x", ID: blob.ID(), Mode: gitobject.ModeFile},
	})
	sig := testSignature()
	parent := gitobject.NewCommit(tree.ID(), nil, sig, gitobject.Signature{}, "first\n")
	child := gitobject.NewCommit(tree.ID(), []githash.Oid{parent.ID()}, sig, gitobject.Signature{}, "second\n")

	raw := string(child.ToObject().Bytes())
	lines := strings.Split(raw, "\n")
	assert.True(t, strings.HasPrefix(lines[1], "parent "))
}

func TestCommitDefaultsCommitterToAuthor(t *testing.T) {
	t.Parallel()

	blob := gitobject.NewBlob([]byte("x"))
	tree := gitobject.NewTree([]gitobject.TreeEntry{
		{Name: "x", ID: blob.ID(), Mode: gitobject.ModeFile},
	})
	sig := testSignature()
	commit := gitobject.NewCommit(tree.ID(), nil, sig, gitobject.Signature{}, "msg")

	raw := string(commit.ToObject().Bytes())
	assert.Contains(t, raw, "author gitdir <gitdir@localhost>")
	assert.Contains(t, raw, "committer gitdir <gitdir@localhost>")
}
