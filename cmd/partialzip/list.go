package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "list <url>",
		Short: "List the entries of a remote archive",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			infos, err := a.engine.List(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, info := range infos {
				if detailed {
					fmt.Fprintf(out, "%s - %s - Supported: %t\n", info.Name, humanize.Bytes(info.CompressedSize), info.Supported)
				} else {
					fmt.Fprintln(out, info.Name)
				}
			}
			a.log.Info("listed archive", "url", args[0], "entries", len(infos))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "Show compressed sizes and whether each entry can be extracted")
	return cmd
}
