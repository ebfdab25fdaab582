package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name|id>",
		Short: "Enable a tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTunnelEnabled(args[0], true)
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name|id>",
		Short: "Disable a tunnel without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTunnelEnabled(args[0], false)
		},
	}
}

func setTunnelEnabled(arg string, enabled bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	tunnels, err := store.Load()
	if err != nil {
		return err
	}

	idx, err := findTunnelIndex(tunnels, arg)
	if err != nil {
		return err
	}
	tunnels[idx].Enabled = enabled
	if err := store.Save(tunnels); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Tunnel '%s' %s\n", tunnels[idx].Name, state)
	return nil
}
