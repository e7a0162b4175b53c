package main

import (
	"fmt"

	"deployhook/internal/security"

	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a random webhook secret",
		Long: `Print a newly generated random secret suitable for DEPLOYHOOK_SECRET and
the GitHub webhook settings page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := security.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
