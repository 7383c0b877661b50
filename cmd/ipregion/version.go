package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ipregion/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "version",
		Short:                 "Print the build commit of ipregion",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, _ []string) {
			commit, modified := version.Get()
			if modified {
				commit += "-dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ipregion version: %s\n", commit)
		},
	}
}
