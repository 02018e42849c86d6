// Package gdconfig resolves a gitdir server's configuration from four
// layered sources, lowest precedence first: built-in defaults, an
// optional ini config file, $GITDIR_* environment variables, and
// finally explicit CLI flags (via LoadOptions) which always win.
package gdconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goabstract/gitdir/internal/env"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// ErrDirRequired is returned when no directory to serve was given by any
// layer.
var ErrDirRequired = errors.New("gdconfig: no directory to serve configured")

const (
	defaultAddr            = ":5000"
	defaultAuthorName      = "GitDIR"
	defaultAuthorEmail     = "gitdir@localhost"
	defaultObjectCacheSize = 1024
	defaultPackCacheSize   = 32
	// defaultFollowSymlinks matches the original implementation's
	// behavior of always following symlinks into ordinary files rather
	// than recording them as symlink blobs.
	defaultFollowSymlinks = true
)

// gitdirZone is the fixed UTC-6 offset the original implementation
// hardcoded for every generated commit's author/committer time.
var gitdirZone = time.FixedZone("", -6*60*60) //nolint:gochecknoglobals // fixed zones are immutable

// defaultLoadOption tolerates unrecognized lines in a hand-edited config
// file instead of aborting the whole load over a stray typo.
var defaultLoadOption = ini.LoadOptions{
	SkipUnrecognizableLines: true,
}

// Config is the fully resolved configuration for a running gitdir
// server.
type Config struct {
	// FS is the filesystem the served directory and any config file are
	// read through.
	FS afero.Fs

	// Addr is the host:port the HTTP server listens on.
	Addr string
	// Dir is the directory snapshotted and served as a single-commit
	// repository.
	Dir string

	// Author is the signature stamped on the generated commit.
	Author gitobject.Signature

	// FollowSymlinks controls whether a symlink is dereferenced into a
	// regular blob (true) or recorded as a symlink entry (false).
	FollowSymlinks bool
	// PreserveExecBit controls whether a file's executable bit is
	// reflected in its tree entry mode.
	PreserveExecBit bool

	// ObjectCacheSize bounds the Object Store's parsed-object LRU cache.
	ObjectCacheSize int
	// PackCacheSize bounds the packfile Encoder's built-pack LRU cache.
	PackCacheSize int
}

// LoadOptions carries the values a caller (typically the CLI layer)
// wants to force regardless of what the config file or environment say.
// A zero value for any field means "let a lower-precedence layer
// decide."
type LoadOptions struct {
	// FS defaults to the real filesystem.
	FS afero.Fs
	// ConfigFile, if set, is loaded as an ini file before env vars are
	// applied.
	ConfigFile string

	Addr string
	Dir  string

	AuthorName  string
	AuthorEmail string

	FollowSymlinks  *bool
	PreserveExecBit *bool

	ObjectCacheSize int
	PackCacheSize   int
}

// Load resolves a Config from an optional ini file, e (environment
// variables), and opts (explicit overrides), in that increasing order of
// precedence.
func Load(e *env.Env, opts LoadOptions) (*Config, error) {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}

	cfg := &Config{
		FS:              opts.FS,
		Addr:            defaultAddr,
		FollowSymlinks:  defaultFollowSymlinks,
		ObjectCacheSize: defaultObjectCacheSize,
		PackCacheSize:   defaultPackCacheSize,
		Author: gitobject.Signature{
			Name:  defaultAuthorName,
			Email: defaultAuthorEmail,
		},
	}

	if err := applyFile(cfg, opts.FS, opts.ConfigFile); err != nil {
		return nil, fmt.Errorf("could not load config file: %w", err)
	}

	applyEnv(cfg, e)
	applyOptions(cfg, opts)

	if cfg.Dir == "" {
		return nil, ErrDirRequired
	}
	return cfg, nil
}

// applyFile layers an ini file's [server] and [author] sections onto
// cfg. A missing path is not an error: not every deployment ships a
// config file.
func applyFile(cfg *Config, fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}

	if _, err := fs.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not check config file %s: %w", path, err)
	}

	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("could not open config file %s: %w", path, err)
	}
	defer func() {
		//nolint:errcheck // best-effort close, the read already happened
		f.Close()
	}()

	parsed, err := ini.LoadSources(defaultLoadOption, f)
	if err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}

	server := parsed.Section("server")
	if v := server.Key("addr").String(); v != "" {
		cfg.Addr = v
	}
	if v := server.Key("dir").String(); v != "" {
		cfg.Dir = v
	}
	if server.HasKey("followSymlinks") {
		if v, kErr := server.Key("followSymlinks").Bool(); kErr == nil {
			cfg.FollowSymlinks = v
		}
	}
	if server.HasKey("preserveExecBit") {
		if v, kErr := server.Key("preserveExecBit").Bool(); kErr == nil {
			cfg.PreserveExecBit = v
		}
	}
	if server.HasKey("objectCacheSize") {
		if v, kErr := server.Key("objectCacheSize").Int(); kErr == nil {
			cfg.ObjectCacheSize = v
		}
	}
	if server.HasKey("packCacheSize") {
		if v, kErr := server.Key("packCacheSize").Int(); kErr == nil {
			cfg.PackCacheSize = v
		}
	}

	author := parsed.Section("author")
	if v := author.Key("name").String(); v != "" {
		cfg.Author.Name = v
	}
	if v := author.Key("email").String(); v != "" {
		cfg.Author.Email = v
	}

	return nil
}

// applyEnv layers $GITDIR_* environment variables onto cfg.
func applyEnv(cfg *Config, e *env.Env) {
	if v := e.Get("GITDIR_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := e.Get("GITDIR_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := e.Get("GITDIR_AUTHOR_NAME"); v != "" {
		cfg.Author.Name = v
	}
	if v := e.Get("GITDIR_AUTHOR_EMAIL"); v != "" {
		cfg.Author.Email = v
	}
	if v := e.Get("GITDIR_FOLLOW_SYMLINKS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FollowSymlinks = b
		}
	}
	if v := e.Get("GITDIR_PRESERVE_EXEC_BIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PreserveExecBit = b
		}
	}
	if v := e.Get("GITDIR_OBJECT_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ObjectCacheSize = n
		}
	}
	if v := e.Get("GITDIR_PACK_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PackCacheSize = n
		}
	}
}

// applyOptions layers explicit CLI-flag overrides onto cfg; these
// always win.
func applyOptions(cfg *Config, opts LoadOptions) {
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Dir != "" {
		cfg.Dir = opts.Dir
	}
	if opts.AuthorName != "" {
		cfg.Author.Name = opts.AuthorName
	}
	if opts.AuthorEmail != "" {
		cfg.Author.Email = opts.AuthorEmail
	}
	if opts.FollowSymlinks != nil {
		cfg.FollowSymlinks = *opts.FollowSymlinks
	}
	if opts.PreserveExecBit != nil {
		cfg.PreserveExecBit = *opts.PreserveExecBit
	}
	if opts.ObjectCacheSize != 0 {
		cfg.ObjectCacheSize = opts.ObjectCacheSize
	}
	if opts.PackCacheSize != 0 {
		cfg.PackCacheSize = opts.PackCacheSize
	}
}

// StampAuthorTime returns cfg.Author with Time set to now, converted
// into the fixed -0600 zone every generated commit uses.
func (cfg *Config) StampAuthorTime(now time.Time) gitobject.Signature {
	sig := cfg.Author
	sig.Time = now.In(gitdirZone)
	return sig
}
