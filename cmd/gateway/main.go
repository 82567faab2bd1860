package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Offline cache gateway in front of a storefront origin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("GATEWAY_CONFIG"), "path to the JSON config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level {crit, error, warn, info, debug}")

	root.AddCommand(
		newServeCmd(flags),
		newInstallCmd(flags),
		newStoresCmd(flags),
	)
	return root
}
