package packfile

import (
	"bytes"

	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"golang.org/x/xerrors"
)

// commitTreeID extracts the oid on a commit's "tree <hex>" header line —
// the only part of a commit payload the reachability walk needs.
func commitTreeID(payload []byte) (githash.Oid, error) {
	nl := bytes.IndexByte(payload, '\n')
	if nl < 0 {
		return githash.NullOid, xerrors.Errorf("commit has no tree line: %w", ErrObjectNotFound)
	}
	line := payload[:nl]
	const prefix = "tree "
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return githash.NullOid, xerrors.Errorf("commit's first line isn't a tree header: %w", ErrObjectNotFound)
	}
	return githash.NewFromChars(line[len(prefix):])
}

// treeEntry is a minimal, already-decoded tree entry: just enough to
// drive the reachability walk.
type treeEntry struct {
	mode gitobject.EntryMode
	id   githash.Oid
}

// parseTreeEntries decodes a tree payload's "mode SP name NUL raw-sha1"
// records.
func parseTreeEntries(payload []byte) ([]treeEntry, error) {
	var entries []treeEntry
	offset := 0
	for offset < len(payload) {
		sp := bytes.IndexByte(payload[offset:], ' ')
		if sp < 0 {
			return nil, xerrors.Errorf("truncated tree entry: %w", ErrObjectNotFound)
		}
		modeBytes := payload[offset : offset+sp]
		offset += sp + 1

		nul := bytes.IndexByte(payload[offset:], 0)
		if nul < 0 {
			return nil, xerrors.Errorf("truncated tree entry name: %w", ErrObjectNotFound)
		}
		offset += nul + 1

		if offset+githash.Size > len(payload) {
			return nil, xerrors.Errorf("truncated tree entry sha: %w", ErrObjectNotFound)
		}
		oid, err := githash.NewFromHex(payload[offset : offset+githash.Size])
		if err != nil {
			return nil, xerrors.Errorf("invalid tree entry sha: %w", err)
		}
		offset += githash.Size

		mode, err := parseOctalMode(modeBytes)
		if err != nil {
			return nil, err
		}
		entries = append(entries, treeEntry{mode: mode, id: oid})
	}
	return entries, nil
}

func parseOctalMode(b []byte) (gitobject.EntryMode, error) {
	var mode int32
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, xerrors.Errorf("invalid octal mode %q: %w", b, ErrObjectNotFound)
		}
		mode = mode*8 + int32(c-'0')
	}
	return gitobject.EntryMode(mode), nil
}
