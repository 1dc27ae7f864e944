package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish your key bundle to the directory",
		Long: "Rotates the signed pre-key when due, replenishes one-time pre-keys " +
			"and publishes a bundle offering one of them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			self, err := cfg.Address()
			if err != nil {
				return err
			}
			bundle, err := deps.PreKeys.PublishBundle()
			if err != nil {
				return err
			}
			if err := deps.Relay.PublishBundle(cmd.Context(), self, bundle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published bundle for %s (signed pre-key %d)\n", self, bundle.SignedPreKeyID)
			return nil
		},
	}
}
