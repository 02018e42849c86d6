// Command gitdir exposes a local directory as a single-commit, read-only,
// cloneable Git repository over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/goabstract/gitdir/internal/env"
	"github.com/spf13/cobra"
)

// globalFlags carries the configuration inputs shared by every
// subcommand: where to find an optional ini config file, and the
// process environment config layers read from.
type globalFlags struct {
	configFile string
	env        *env.Env
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitdir",
		Short:         "serve a directory as a single-commit, read-only git repository",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cfg := &globalFlags{env: env.NewFromOs()}
	cmd.PersistentFlags().StringVar(&cfg.configFile, "config", "", "path to an optional ini config file")

	serveCmd := newServeCmd(cfg)
	// serving is the default action: running gitdir with no subcommand
	// behaves exactly like "gitdir serve".
	cmd.RunE = serveCmd.RunE
	cmd.Flags().AddFlagSet(serveCmd.Flags())

	cmd.AddCommand(serveCmd)
	cmd.AddCommand(newExportCmd(cfg))

	return cmd
}
