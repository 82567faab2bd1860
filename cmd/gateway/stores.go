package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"offline_gateway/internal/gateway"
)

func newStoresCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Inspect and prune cache stores",
	}
	cmd.AddCommand(newStoresListCmd(flags), newStoresPruneCmd(flags))
	return cmd
}

func newStoresListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cache stores with their entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			code, assets := a.gateway.StoreNames()
			stores, err := gateway.ListStores(cmd.Context(), a.storage, code, assets)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENTRIES\tCURRENT")
			for _, store := range stores {
				fmt.Fprintf(w, "%s\t%d\t%t\n", store.Name, store.Entries, store.Current)
			}
			return w.Flush()
		},
	}
}

func newStoresPruneCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop stores of older versions under the configured prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			pruned, err := a.gateway.Prune(cmd.Context())
			for _, name := range pruned {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return err
		},
	}
}
