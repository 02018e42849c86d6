package gdconfig_test

import (
	"testing"
	"time"

	"github.com/goabstract/gitdir/internal/env"
	"github.com/goabstract/gitdir/internal/gdconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := gdconfig.Load(env.NewFromKVList(nil), gdconfig.LoadOptions{
		FS:  fs,
		Dir: "/srv/repo",
	})
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, "/srv/repo", cfg.Dir)
	assert.Equal(t, "GitDIR", cfg.Author.Name)
	assert.Equal(t, "gitdir@localhost", cfg.Author.Email)
	assert.True(t, cfg.FollowSymlinks)
	assert.False(t, cfg.PreserveExecBit)
	assert.Equal(t, 1024, cfg.ObjectCacheSize)
	assert.Equal(t, 32, cfg.PackCacheSize)
}

func TestLoadRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := gdconfig.Load(env.NewFromKVList(nil), gdconfig.LoadOptions{FS: afero.NewMemMapFs()})
	assert.ErrorIs(t, err, gdconfig.ErrDirRequired)
}

func TestLoadFileIsOverriddenByEnvAndOptions(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/gitdir.ini", []byte(
		"[server]\naddr = :9000\ndir = /from-file\n[author]\nname = FileAuthor\n",
	), 0o644))

	e := env.NewFromKVList([]string{"GITDIR_ADDR=:9100"})

	cfg, err := gdconfig.Load(e, gdconfig.LoadOptions{
		FS:         fs,
		ConfigFile: "/etc/gitdir.ini",
		Dir:        "/from-flags",
	})
	require.NoError(t, err)

	// env overrides file
	assert.Equal(t, ":9100", cfg.Addr)
	// explicit option overrides both file and env
	assert.Equal(t, "/from-flags", cfg.Dir)
	// file overrides default, nothing above it set author
	assert.Equal(t, "FileAuthor", cfg.Author.Name)
}

func TestLoadMissingConfigFileIsNotAnError(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := gdconfig.Load(env.NewFromKVList(nil), gdconfig.LoadOptions{
		FS:         fs,
		ConfigFile: "/does/not/exist.ini",
		Dir:        "/srv/repo",
	})
	require.NoError(t, err)
	assert.Equal(t, "/srv/repo", cfg.Dir)
}

func TestStampAuthorTimeUsesFixedOffset(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := gdconfig.Load(env.NewFromKVList(nil), gdconfig.LoadOptions{FS: fs, Dir: "/srv/repo"})
	require.NoError(t, err)

	sig := cfg.StampAuthorTime(time.Now())
	assert.Equal(t, "-0600", sig.Time.Format("-0700"))
}
