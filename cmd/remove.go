package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name|id>",
		Aliases: []string{"rm"},
		Short:   "Remove a tunnel from the configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			tunnels, err := store.Load()
			if err != nil {
				return err
			}

			idx, err := findTunnelIndex(tunnels, args[0])
			if err != nil {
				return err
			}
			removed := tunnels[idx]
			tunnels = append(tunnels[:idx], tunnels[idx+1:]...)
			if err := store.Save(tunnels); err != nil {
				return err
			}

			fmt.Printf("Removed tunnel '%s'\n", removed.Name)
			return nil
		},
	}
}
