// Package smarthttp implements the two HTTP endpoints of Git's smart
// transport for the git-upload-pack service: ref advertisement and
// packfile negotiation.
package smarthttp

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goabstract/gitdir/internal/gdconfig"
	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/goabstract/gitdir/internal/packfile"
	"github.com/goabstract/gitdir/internal/pktline"
	"github.com/goabstract/gitdir/internal/snapshot"
	"k8s.io/klog/v2"
)

const (
	uploadPackService = "git-upload-pack"

	// capabilities is the NUL-delimited capability string advertised
	// alongside the first ref in an info/refs response.
	capabilities = "multi_ack_detailed thin-pack side-band side-band-64k ofs-delta"

	uploadPackRequestType       = "application/x-git-upload-pack-request"
	uploadPackAdvertisementMIME = "application/x-git-upload-pack-advertisement"
	uploadPackResultMIME        = "application/x-git-upload-pack-result"

	// maxUploadPackRequestSize bounds an upload-pack request body: a
	// single-want, no-history clone never sends more than a handful of
	// want/have/done pkt-lines, so anything past this is either a
	// misbehaving client or abuse.
	maxUploadPackRequestSize = 1 << 20 // 1 MiB
)

// Handler serves the two git-upload-pack smart-HTTP endpoints against a
// single lazily-built directory snapshot.
type Handler struct {
	lazy    *snapshot.Lazy
	store   *objectstore.Store
	encoder *packfile.Encoder
	cfg     *gdconfig.Config
}

// NewHandler builds a Handler. lazy must be backed by store, and encoder
// must read from the same store.
func NewHandler(lazy *snapshot.Lazy, store *objectstore.Store, encoder *packfile.Encoder, cfg *gdconfig.Config) *Handler {
	return &Handler{lazy: lazy, store: store, encoder: encoder, cfg: cfg}
}

// ServeHTTP dispatches to the two supported endpoints; anything else is
// a 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	klog.Infof("%s %s", r.Method, r.URL.Path)

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/info/refs"):
		h.handleInfoRefs(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/git-upload-pack"):
		h.handleUploadPack(w, r)
	default:
		http.NotFound(w, r)
	}
}

func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Expires", "Fri, 01 Jan 1980 00:00:00 GMT")
	w.Header().Set("Pragma", "no-cache")
}

// handleInfoRefs implements `GET /info/refs?service=git-upload-pack`.
func (h *Handler) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service != uploadPackService {
		klog.Warningf("info/refs: rejecting service %q", service)
		http.Error(w, ErrBadService.Error(), http.StatusForbidden)
		return
	}

	snap, err := h.lazy.Get()
	if err != nil {
		klog.Errorf("info/refs: building snapshot: %v", err)
		http.Error(w, "could not build snapshot", http.StatusInternalServerError)
		return
	}

	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", uploadPackAdvertisementMIME)
	w.WriteHeader(http.StatusOK)

	sha := snap.CommitID.String()
	pw := pktline.NewWriter(w)
	pw.WriteString(fmt.Sprintf("# service=%s\n", uploadPackService))
	pw.WriteFlush()
	pw.WriteString(fmt.Sprintf("%s HEAD\x00%s\n", sha, capabilities))
	pw.WriteString(fmt.Sprintf("%s refs/heads/main\n", sha))
	pw.WriteFlush()

	if err := pw.Flush(); err != nil {
		klog.Warningf("info/refs: writing response: %v", err)
	}
}

// handleUploadPack implements `POST /git-upload-pack`.
func (h *Handler) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != uploadPackRequestType {
		klog.Warningf("upload-pack: rejecting content-type %q", ct)
		http.Error(w, "unexpected content-type", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadPackRequestSize)

	want, err := parseWant(r)
	if err != nil {
		if errors.Is(err, pktline.ErrNoWant) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		klog.Errorf("upload-pack: reading request body: %v", err)
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	pack, err := h.encoder.Encode(want)
	if err != nil {
		if errors.Is(err, packfile.ErrObjectNotFound) {
			klog.Warningf("upload-pack: unknown want %s", want)
			http.Error(w, "unknown object", http.StatusNotFound)
			return
		}
		klog.Errorf("upload-pack: building pack for %s: %v", want, err)
		http.Error(w, "could not build packfile", http.StatusInternalServerError)
		return
	}

	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", uploadPackResultMIME)
	w.WriteHeader(http.StatusOK)

	pw := pktline.NewWriter(w)
	pw.WriteString("NAK\n")
	writePackInChunks(pw, pack)
	pw.WriteFlush()

	if err := pw.Flush(); err != nil {
		klog.Warningf("upload-pack: mid-stream write failure: %v", err)
	}
}

// writePackInChunks emits pack as one or more side-band-1 pkt-lines of
// at most pktline.MaxDataSize-1 bytes of payload each, followed by a
// one-line side-band-2 progress summary.
func writePackInChunks(pw *pktline.Writer, pack []byte) {
	const chunkSize = pktline.MaxDataSize - 1

	chunks := 0
	for len(pack) > 0 {
		n := chunkSize
		if n > len(pack) {
			n = len(pack)
		}
		pw.WriteSideBand(pktline.BandData, pack[:n])
		pack = pack[n:]
		chunks++
	}
	pw.WriteSideBand(pktline.BandProgress, []byte(fmt.Sprintf("serving %d chunks\n", chunks)))
}

// parseWant scans the request body for the first `want <sha>` line,
// ignoring `have` and `done` lines per the single-want simplification.
func parseWant(r *http.Request) (githash.Oid, error) {
	s := pktline.NewScanner(r.Body)
	for s.Scan() {
		line := bytes.TrimRight(s.Bytes(), "\n")
		fields := strings.Fields(string(line))
		if len(fields) >= 2 && fields[0] == "want" {
			return githash.NewFromString(fields[1])
		}
	}
	if err := s.Err(); err != nil {
		return githash.NullOid, err
	}
	return githash.NullOid, pktline.ErrNoWant
}
