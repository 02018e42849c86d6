package snapshot

import (
	"sync"

	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/spf13/afero"
)

// Lazy guards a single Snapshot build behind a sync.Once, so that two
// concurrent first requests against a cold server only walk the target
// directory once. Every caller after the first blocks until the build
// completes and then shares its result (or its error).
type Lazy struct {
	fs    afero.Fs
	root  string
	store *objectstore.Store
	opts  Options

	once   sync.Once
	snap   *Snapshot
	buildE error
}

// NewLazy returns a Lazy that will build its Snapshot from root on fs,
// storing objects in store, on first call to Get.
func NewLazy(fs afero.Fs, root string, store *objectstore.Store, opts Options) *Lazy {
	return &Lazy{fs: fs, root: root, store: store, opts: opts}
}

// Get returns the Snapshot, building it on the first call. Every
// subsequent call, concurrent or not, returns the same Snapshot (or the
// same error) without walking the filesystem again.
func (l *Lazy) Get() (*Snapshot, error) {
	l.once.Do(func() {
		l.snap, l.buildE = Build(l.fs, l.root, l.store, l.opts)
	})
	return l.snap, l.buildE
}
