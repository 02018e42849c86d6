package gitobject

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goabstract/gitdir/internal/githash"
)

// Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string
	Email string
	Time  time.Time
}

// String renders a signature the way a commit header expects it:
// "Name <email> unix-seconds tz-offset".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.Time.Unix(), s.Time.Format("-0700"))
}

// Commit is a synthetic commit object with zero or more parents.
type Commit struct {
	rawObject *Object

	treeID    githash.Oid
	parentIDs []githash.Oid
	author    Signature
	committer Signature
	message   string
}

// NewCommit builds a commit pointing at treeID, with zero or more
// parents. If committer is the zero Signature, author is used for both.
func NewCommit(treeID githash.Oid, parentIDs []githash.Oid, author, committer Signature, message string) *Commit {
	if committer.Name == "" && committer.Email == "" {
		committer = author
	}
	c := &Commit{
		treeID:    treeID,
		parentIDs: parentIDs,
		author:    author,
		committer: committer,
		message:   message,
	}
	c.rawObject = c.toObject()
	return c
}

// ID returns the commit object's SHA-1 name.
func (c *Commit) ID() githash.Oid {
	return c.rawObject.ID()
}

// TreeID returns the SHA-1 of the commit's root tree.
func (c *Commit) TreeID() githash.Oid {
	return c.treeID
}

// ToObject returns the commit's underlying Object.
func (c *Commit) ToObject() *Object {
	return c.rawObject
}

// toObject serializes the commit headers (tree, parent*, author,
// committer), a blank line, then the message, in that fixed order.
func (c *Commit) toObject() *Object {
	buf := new(bytes.Buffer)

	buf.WriteString("tree ")
	buf.WriteString(c.treeID.String())
	buf.WriteByte('\n')

	for _, p := range c.parentIDs {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	buf.WriteString("author ")
	buf.WriteString(c.author.String())
	buf.WriteByte('\n')

	buf.WriteString("committer ")
	buf.WriteString(c.committer.String())
	buf.WriteByte('\n')

	buf.WriteByte('\n')
	buf.WriteString(c.message)

	return New(KindCommit, buf.Bytes())
}
