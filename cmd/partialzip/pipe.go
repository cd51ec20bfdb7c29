package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/partialzip"
)

func (a *app) pipeCmd() *cobra.Command {
	var verifyFirst bool

	cmd := &cobra.Command{
		Use:   "pipe <url> <entry>",
		Short: "Write the content of one entry to standard output",
		Long: "pipe streams the decoded entry to standard output. Content is verified " +
			"as it streams, so a failed check may leave partial output unless --verify-first is set.",
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			var opts []partialzip.DownloadOption
			if verifyFirst {
				opts = append(opts, partialzip.WithVerifyBeforeWrite())
			}
			n, err := a.engine.Download(ctx, args[0], args[1], cmd.OutOrStdout(), opts...)
			if err != nil {
				return err
			}
			a.log.Info("piped entry", "entry", args[1], "bytes", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verifyFirst, "verify-first", false, "Buffer and verify the entry before writing anything")
	return cmd
}
