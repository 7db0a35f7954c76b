package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <result-id>",
		Short: "Delete every candidate and the run marker for a result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := root.client().Cleanup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d candidates\n", n)
			return nil
		},
	}
}
