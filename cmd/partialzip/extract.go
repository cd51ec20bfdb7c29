package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/partialzip"
)

func (a *app) extractCmd() *cobra.Command {
	var (
		force     bool
		keepTimes bool
	)

	cmd := &cobra.Command{
		Use:   "extract <url> <dir> <entry>...",
		Short: "Extract several entries of a remote archive into a directory",
		Long: "extract saves each entry into <dir> under the last element of its name. " +
			"The central directory is read once and entries are downloaded in order.",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MinimumNArgs(3)(cmd, args); err != nil {
				return &usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			var opts []partialzip.DownloadOption
			if force {
				opts = append(opts, partialzip.WithOverwrite())
			}
			if keepTimes {
				opts = append(opts, partialzip.WithPreserveTimes())
			}

			results, err := a.engine.DownloadToDir(ctx, args[0], args[2:], args[1], opts...)
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%s extracted to %s (%s) %s\n", r.Entry.Name, r.Path,
					humanize.Bytes(uint64(r.Written)), r.Digest) //nolint:gosec // never negative
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing output files")
	cmd.Flags().BoolVar(&keepTimes, "preserve-times", false, "Set output modification times from the archive")
	return cmd
}
