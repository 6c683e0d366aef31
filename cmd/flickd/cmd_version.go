package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the "flickd version" subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flickd version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "flickd %s\n", version)
			return nil
		},
	}
}
