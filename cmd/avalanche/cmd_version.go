package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silolab/avalanche/internal/constants"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": constants.Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "avalanche %s\n", constants.Version)
			return nil
		},
	}
}
