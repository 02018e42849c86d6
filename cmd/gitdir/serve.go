package main

import (
	"net/http"
	"time"

	"github.com/goabstract/gitdir/internal/gdconfig"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/goabstract/gitdir/internal/packfile"
	"github.com/goabstract/gitdir/internal/pathutil"
	"github.com/goabstract/gitdir/internal/smarthttp"
	"github.com/goabstract/gitdir/internal/snapshot"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// serveFlags are the flags specific to the serve subcommand; everything
// else is resolved through gdconfig's layered precedence.
type serveFlags struct {
	dir                string
	addr               string
	followSymlinks     bool
	followSymlinksSet  bool
	preserveExecBit    bool
	preserveExecBitSet bool
	objectCacheSize    int
	packCacheSize      int
}

func newServeCmd(cfg *globalFlags) *cobra.Command {
	flags := serveFlags{}
	dirFlag := pathutil.NewDirPathFlagWithDefault("")

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP server (default action)",
	}
	cmd.Flags().VarP(dirFlag, "dir", "d", "directory to serve")
	cmd.Flags().StringVarP(&flags.addr, "addr", "a", "", "host:port to listen on")
	cmd.Flags().BoolVar(&flags.followSymlinks, "follow-symlinks", false, "dereference symlinks into regular blobs instead of recording them as symlink entries")
	cmd.Flags().BoolVar(&flags.preserveExecBit, "preserve-exec-bit", false, "surface a file's executable bit as mode 100755 in the tree")
	cmd.Flags().IntVar(&flags.objectCacheSize, "object-cache-size", 0, "size of the parsed-object LRU cache")
	cmd.Flags().IntVar(&flags.packCacheSize, "pack-cache-size", 0, "size of the built-packfile LRU cache")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		flags.dir = dirFlag.String()
		flags.followSymlinksSet = cmd.Flags().Changed("follow-symlinks")
		flags.preserveExecBitSet = cmd.Flags().Changed("preserve-exec-bit")
		return serveCmd(cfg, flags)
	}

	return cmd
}

// loadOptionsFromFlags turns parsed CLI flags into gdconfig.LoadOptions.
// followSymlinks/preserveExecBit only override the layered config when the
// flag was actually passed on the command line — both default to false,
// which for follow-symlinks is the opposite of gdconfig's own default, so
// an unconditional "if flags.followSymlinks" guard could never express
// "explicitly turn this off".
func loadOptionsFromFlags(cfg *globalFlags, flags serveFlags) gdconfig.LoadOptions {
	opts := gdconfig.LoadOptions{
		ConfigFile:      cfg.configFile,
		Addr:            flags.addr,
		Dir:             flags.dir,
		ObjectCacheSize: flags.objectCacheSize,
		PackCacheSize:   flags.packCacheSize,
	}
	if flags.followSymlinksSet {
		opts.FollowSymlinks = &flags.followSymlinks
	}
	if flags.preserveExecBitSet {
		opts.PreserveExecBit = &flags.preserveExecBit
	}
	return opts
}

func serveCmd(cfg *globalFlags, flags serveFlags) error {
	conf, err := gdconfig.Load(cfg.env, loadOptionsFromFlags(cfg, flags))
	if err != nil {
		return errors.Wrap(err, "could not resolve configuration")
	}

	store := objectstore.New(conf.ObjectCacheSize)
	lazy := snapshot.NewLazy(conf.FS, conf.Dir, store, snapshot.Options{
		AuthorFn:        func() gitobject.Signature { return conf.StampAuthorTime(time.Now()) },
		Message:         "snapshot\n",
		FollowSymlinks:  conf.FollowSymlinks,
		PreserveExecBit: conf.PreserveExecBit,
	})
	enc := packfile.NewEncoder(store, conf.PackCacheSize)
	handler := smarthttp.NewHandler(lazy, store, enc, conf)

	klog.Infof("gitdir: serving %s on %s", conf.Dir, conf.Addr)
	return http.ListenAndServe(conf.Addr, handler)
}
