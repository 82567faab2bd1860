package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCmd(flags *rootFlags) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Precache the configured version into durable storage and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.gateway.Install(cmd.Context())
			if err != nil {
				return err
			}
			logInstall(a, result)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if strict && len(result.Failed) > 0 {
				return fmt.Errorf("%d of %d assets failed to precache", len(result.Failed), len(result.Failed)+len(result.Populated))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any asset fails to precache")
	return cmd
}
