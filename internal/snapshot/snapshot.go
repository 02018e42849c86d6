// Package snapshot assembles a directory into a single synthetic Git
// commit: one blob per file, one tree per directory level, and one
// parentless commit over the root tree.
package snapshot

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/goabstract/gitdir/internal/syncutil"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// ErrFilesystem is returned when walking or reading the target directory
// fails.
var ErrFilesystem = errors.New("filesystem error")

// ErrInvalidName is returned when a file's relative path contains a NUL
// byte — NUL is the tree-entry delimiter, so such a name can never be
// safely encoded.
var ErrInvalidName = errors.New("invalid file name")

// Options configures how a directory is turned into a Snapshot.
type Options struct {
	// Author identifies the synthesized commit's author and committer. Used
	// as-is unless AuthorFn is set.
	Author gitobject.Signature
	// AuthorFn, when set, is called at the moment the commit is actually
	// built to produce the author/committer signature, taking precedence
	// over Author. Paired with a Lazy, this stamps the commit with the
	// time of the first real request rather than the time the server (and
	// its Options) happened to be constructed.
	AuthorFn func() gitobject.Signature
	// Message is the commit message. Defaults to "snapshot\n".
	Message string
	// FollowSymlinks, when true (gdconfig's default; the zero value here
	// is false), reads through a symlink
	// and stores its target's content as a regular blob — this mirrors
	// the documented behavior of the original source, flagged there as a
	// likely bug. When false, a symlink is stored as ModeSymlink with its
	// target path as the blob payload.
	FollowSymlinks bool
	// PreserveExecBit, when true, stores files with the owner-execute bit
	// set as ModeExecutable instead of ModeFile. Defaults to false, which
	// matches the minimum-core behavior of treating every file as 100644.
	PreserveExecBit bool
	// Concurrency bounds how many files are blobbed in parallel. Defaults
	// to runtime.GOMAXPROCS(0).
	Concurrency int
}

// Snapshot is the immutable record of one assembled directory: the
// commit's SHA, its root tree's SHA, and every blob/tree SHA it contains.
type Snapshot struct {
	CommitID githash.Oid
	TreeID   githash.Oid
	BlobIDs  []githash.Oid
	TreeIDs  []githash.Oid
}

// fileJob describes one file discovered under the root. oid is filled in
// by blobify once the file has been read and stored.
type fileJob struct {
	relPath string
	mode    gitobject.EntryMode
	absPath string
	// content is pre-populated for symlinks stored as ModeSymlink (the
	// link target); otherwise it's read from fs at absPath.
	content []byte
	oid     githash.Oid
}

type dirNode struct {
	files    []*fileJob
	children map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{children: map[string]*dirNode{}}
}

// Build walks root on fs and produces a Snapshot, populating store with
// every blob, tree and commit object it creates along the way. Build
// itself is not safe to race against a second concurrent call for the
// same store — pair it with a Lazy to guarantee at-most-once execution.
func Build(fs afero.Fs, root string, store *objectstore.Store, opts Options) (*Snapshot, error) {
	if opts.Message == "" {
		opts.Message = "snapshot\n"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	jobs, err := discover(fs, root, opts)
	if err != nil {
		return nil, err
	}

	blobMu := syncutil.NewNamedMutex(64)
	if err := blobify(fs, store, blobMu, jobs, opts); err != nil {
		return nil, err
	}

	tree := newDirNode()
	for _, j := range jobs {
		insertJob(tree, j)
	}

	treeIDs := []githash.Oid{}
	rootTreeID := buildTree(tree, store, &treeIDs)

	author := opts.Author
	if opts.AuthorFn != nil {
		author = opts.AuthorFn()
	}
	commit := gitobject.NewCommit(rootTreeID, nil, author, gitobject.Signature{}, opts.Message)
	store.Put(commit.ToObject())

	blobIDs := make([]githash.Oid, len(jobs))
	for i, j := range jobs {
		blobIDs[i] = j.oid
	}

	return &Snapshot{
		CommitID: commit.ID(),
		TreeID:   rootTreeID,
		BlobIDs:  blobIDs,
		TreeIDs:  treeIDs,
	}, nil
}

// discover walks the directory tree, applying the .git/dotfile skip
// rules, and returns one fileJob per regular file or symlink found.
func discover(fs afero.Fs, root string, opts Options) ([]*fileJob, error) {
	var jobs []*fileJob

	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return xerrors.Errorf("walking %s: %w: %s", p, ErrFilesystem, err.Error())
		}
		if info.IsDir() {
			if info.Name() == ".git" && p != root {
				return filepath.SkipDir
			}
			return nil
		}

		rel := relPath(root, p)
		if hasDotGitComponent(rel) || isDotfile(rel) {
			return nil
		}
		if strings.ContainsRune(rel, 0) {
			return xerrors.Errorf("%s: %w", rel, ErrInvalidName)
		}

		// info comes from Lstat, so for a symlink this is the link's own
		// mode bits, not the target's. Dereference before reading the exec
		// bit when the symlink is going to be followed into a regular blob,
		// otherwise a symlink (typically rwxrwxrwx) always looks executable
		// regardless of what it points at.
		execBitSource := info
		if opts.PreserveExecBit && opts.FollowSymlinks && info.Mode()&os.ModeSymlink != 0 {
			target, statErr := fs.Stat(p)
			if statErr != nil {
				return xerrors.Errorf("stat %s: %w: %s", p, ErrFilesystem, statErr.Error())
			}
			execBitSource = target
		}

		mode := gitobject.ModeFile
		if opts.PreserveExecBit && execBitSource.Mode()&0o100 != 0 {
			mode = gitobject.ModeExecutable
		}

		job := &fileJob{relPath: rel, mode: mode, absPath: p}
		if info.Mode()&os.ModeSymlink != 0 && !opts.FollowSymlinks {
			target, err := afero.ReadlinkIfPossible(fs, p)
			if err != nil {
				return xerrors.Errorf("reading symlink %s: %w: %s", p, ErrFilesystem, err.Error())
			}
			job.mode = gitobject.ModeSymlink
			job.content = []byte(target)
			job.absPath = ""
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func relPath(root, p string) string {
	rel := strings.TrimPrefix(p, root)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.ToSlash(rel)
}

func hasDotGitComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

func isDotfile(rel string) bool {
	base := path.Base(rel)
	return strings.HasPrefix(base, ".")
}

// blobify reads and stores every file job concurrently. Two jobs whose
// content hashes to the same oid race to insert it into store, which is
// safe on its own (first-writer-wins under the store's lock); the
// NamedMutex here additionally serializes the Put calls of jobs whose
// oids land in the same hash bucket. Reading and hashing a file happen
// before that lock is taken.
func blobify(fs afero.Fs, store *objectstore.Store, mu *syncutil.NamedMutex, jobs []*fileJob, opts Options) error {
	errs := make(chan error, len(jobs))
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		go func(j *fileJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content := j.content
			if content == nil {
				var err error
				content, err = afero.ReadFile(fs, j.absPath)
				if err != nil {
					errs <- xerrors.Errorf("reading %s: %w: %s", j.relPath, ErrFilesystem, err.Error())
					return
				}
			}

			blob := gitobject.NewBlob(content)
			key := blob.ID().Bytes()
			mu.Lock(key)
			j.oid = store.Put(blob)
			mu.Unlock(key)
		}(j)
	}
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// insertJob places a file job into the in-memory directory tree that
// mirrors the filesystem, splitting its relative path into components.
func insertJob(root *dirNode, j *fileJob) {
	parts := strings.Split(j.relPath, "/")
	node := root
	for _, d := range parts[:len(parts)-1] {
		child, ok := node.children[d]
		if !ok {
			child = newDirNode()
			node.children[d] = child
		}
		node = child
	}
	node.files = append(node.files, j)
}

// buildTree recursively serializes a dirNode into a nested Tree object,
// post-order: subdirectories are built (and recorded) before the
// directory that contains them.
func buildTree(node *dirNode, store *objectstore.Store, treeIDs *[]githash.Oid) githash.Oid {
	entries := make([]gitobject.TreeEntry, 0, len(node.files)+len(node.children))

	for name, child := range node.children {
		childID := buildTree(child, store, treeIDs)
		entries = append(entries, gitobject.TreeEntry{
			Name: name,
			ID:   childID,
			Mode: gitobject.ModeDirectory,
		})
	}

	for _, f := range node.files {
		entries = append(entries, gitobject.TreeEntry{
			Name: path.Base(f.relPath),
			ID:   f.oid,
			Mode: f.mode,
		})
	}

	tree := gitobject.NewTree(entries)
	oid := store.Put(tree.ToObject())
	*treeIDs = append(*treeIDs, oid)
	return oid
}
