package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/partialzip"
)

func (a *app) downloadCmd() *cobra.Command {
	var (
		force      bool
		noProgress bool
		keepTimes  bool
	)

	cmd := &cobra.Command{
		Use:   "download <url> <entry> <output>",
		Short: "Extract one entry of a remote archive to a file",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			url, entry, output := args[0], args[1], args[2]
			var opts []partialzip.DownloadOption
			if force {
				opts = append(opts, partialzip.WithOverwrite())
			}
			if keepTimes {
				opts = append(opts, partialzip.WithPreserveTimes())
			}
			bar := newProgressBar(cmd.ErrOrStderr(), !noProgress)
			if bar != nil {
				opts = append(opts, partialzip.WithProgress(bar.Update))
				defer bar.Done()
			}

			result, err := a.engine.DownloadFile(ctx, url, entry, output, opts...)
			if err != nil {
				return err
			}
			if bar != nil {
				bar.Done()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s extracted to %s (%s)\n", entry, result.Path, humanize.Bytes(uint64(result.Written))) //nolint:gosec // never negative
			fmt.Fprintln(out, result.Digest)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite the output file if it exists")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show a progress bar")
	cmd.Flags().BoolVar(&keepTimes, "preserve-times", false, "Set the output modification time from the archive")
	return cmd
}
