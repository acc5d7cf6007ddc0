package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/any-hub/md-hub/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the md-hub version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd)
		},
	}
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion(cmd *cobra.Command) {
	fmt.Fprintln(cmd.OutOrStdout(), version.Full())
}
