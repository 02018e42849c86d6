// Package objectstore holds the process-lifetime, in-memory mapping from
// SHA-1 name to serialized object bytes that backs the whole server: once
// a snapshot has been assembled, every object it contains lives here and
// is never mutated again.
package objectstore

import (
	"bytes"
	"sync"

	"github.com/goabstract/gitdir/internal/cache"
	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/readutil"
)

// defaultCacheSize bounds the number of parsed (kind, payload) pairs kept
// in the read-through cache.
const defaultCacheSize = 1024

// Store is an in-memory, concurrent-safe object database. There is no
// disk and no packfile fallback — unlike a real .git/objects directory,
// this store *is* the complete and only copy of every object the server
// knows about.
type Store struct {
	mu      sync.RWMutex
	objects map[githash.Oid][]byte

	cache *cache.LRU
}

// New creates an empty Store. cacheSize controls the LRU front-cache of
// parsed objects; 0 uses a sane default.
func New(cacheSize int) *Store {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Store{
		objects: map[githash.Oid][]byte{},
		cache:   cache.NewLRU(cacheSize),
	}
}

// Put stores o's loose form, keyed by its oid. Put is idempotent: if the
// oid is already present, the existing bytes are kept and the duplicate
// write is dropped (first writer wins, matching the behavior of a real
// content-addressed store where two writers of identical content produce
// the same key).
func (s *Store) Put(o *gitobject.Object) githash.Oid {
	oid := o.ID()

	s.mu.Lock()
	if _, exists := s.objects[oid]; !exists {
		s.objects[oid] = o.Loose()
	}
	s.mu.Unlock()

	return oid
}

// Get returns the loose-form bytes stored under oid, if any.
func (s *Store) Get(oid githash.Oid) (loose []byte, ok bool) {
	s.mu.RLock()
	loose, ok = s.objects[oid]
	s.mu.RUnlock()
	return loose, ok
}

// Has reports whether oid is present in the store.
func (s *Store) Has(oid githash.Oid) bool {
	s.mu.RLock()
	_, ok := s.objects[oid]
	s.mu.RUnlock()
	return ok
}

// Parsed is the cached, already-split representation of a stored object:
// its kind and its payload (the loose form stripped of the header).
type Parsed struct {
	Kind    gitobject.Kind
	Payload []byte
}

// GetParsed returns the kind and payload of oid, splitting and caching
// the loose-form header on first access so that a hot object (typically
// the root commit and its tree, re-read on every reachability walk) only
// pays the header-parse cost once.
func (s *Store) GetParsed(oid githash.Oid) (Parsed, bool) {
	if cached, found := s.cache.Get(oid); found {
		if p, valid := cached.(Parsed); valid {
			return p, true
		}
	}

	loose, ok := s.Get(oid)
	if !ok {
		return Parsed{}, false
	}

	p, ok := splitLoose(loose)
	if !ok {
		return Parsed{}, false
	}
	s.cache.Add(oid, p)
	return p, true
}

// splitLoose parses a loose object's "<kind> <len>\x00<payload>" header
// and returns the kind and payload slice.
func splitLoose(loose []byte) (Parsed, bool) {
	kindBytes := readutil.ReadTo(loose, ' ')
	if kindBytes == nil {
		return Parsed{}, false
	}
	sp := len(kindBytes)

	nul := bytes.IndexByte(loose[sp+1:], 0)
	if nul < 0 {
		return Parsed{}, false
	}
	nul += sp + 1

	var kind gitobject.Kind
	switch string(kindBytes) {
	case "commit":
		kind = gitobject.KindCommit
	case "tree":
		kind = gitobject.KindTree
	case "blob":
		kind = gitobject.KindBlob
	default:
		return Parsed{}, false
	}

	return Parsed{Kind: kind, Payload: loose[nul+1:]}, true
}

// Len returns the number of objects currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
