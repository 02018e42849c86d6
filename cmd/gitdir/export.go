package main

import (
	"fmt"
	"io"
	"time"

	"github.com/goabstract/gitdir/internal/gdconfig"
	"github.com/goabstract/gitdir/internal/githash"
	"github.com/goabstract/gitdir/internal/gitobject"
	"github.com/goabstract/gitdir/internal/objectstore"
	"github.com/goabstract/gitdir/internal/pathutil"
	"github.com/goabstract/gitdir/internal/snapshot"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// exportFlags are the flags specific to the export subcommand.
type exportFlags struct {
	dir string
}

func newExportCmd(cfg *globalFlags) *cobra.Command {
	flags := exportFlags{}
	dirFlag := pathutil.NewDirPathFlagWithDefault("")

	cmd := &cobra.Command{
		Use:   "export <outdir>",
		Short: "write the synthesized snapshot to disk as loose objects, without starting a server",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().VarP(dirFlag, "dir", "d", "directory to snapshot")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		flags.dir = dirFlag.String()
		return exportCmd(cmd.OutOrStdout(), cfg, flags, args[0])
	}

	return cmd
}

func exportCmd(out io.Writer, cfg *globalFlags, flags exportFlags, outDir string) error {
	conf, err := gdconfig.Load(cfg.env, gdconfig.LoadOptions{
		ConfigFile: cfg.configFile,
		Dir:        flags.dir,
	})
	if err != nil {
		return errors.Wrap(err, "could not resolve configuration")
	}

	store := objectstore.New(0)
	snap, err := snapshot.Build(conf.FS, conf.Dir, store, snapshot.Options{
		Author:          conf.StampAuthorTime(time.Now()),
		Message:         "snapshot\n",
		FollowSymlinks:  conf.FollowSymlinks,
		PreserveExecBit: conf.PreserveExecBit,
	})
	if err != nil {
		return fmt.Errorf("could not build snapshot: %w", err)
	}

	destFS := afero.NewOsFs()
	all := append([]githash.Oid{snap.CommitID}, snap.TreeIDs...)
	all = append(all, snap.BlobIDs...)

	for _, oid := range all {
		if err := writeLooseObject(destFS, outDir, store, oid); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "exported %d objects to %s\n", len(all), outDir)
	fmt.Fprintf(out, "commit %s\n", snap.CommitID)
	return nil
}

// writeLooseObject writes store's compressed form of oid to
// outDir/objects/xx/yyyy..., matching the two-char-prefix layout real
// Git uses under .git/objects.
func writeLooseObject(fs afero.Fs, outDir string, store *objectstore.Store, oid githash.Oid) (err error) {
	parsed, ok := store.GetParsed(oid)
	if !ok {
		return fmt.Errorf("export: object %s not found in store", oid)
	}

	compressed, err := gitobject.New(parsed.Kind, parsed.Payload).Compress()
	if err != nil {
		return fmt.Errorf("could not compress object %s: %w", oid, err)
	}

	sha := oid.String()
	dir := outDir + "/objects/" + sha[:2]
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	path := dir + "/" + sha[2:]
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	_, err = f.Write(compressed)
	return err
}
