package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tunnelctl/internal/config"
	"tunnelctl/pkg/logging"
)

var configPath string
var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tunnelctl",
	Short: "Supervise kubectl port-forward tunnels to cluster services",
	Long: `tunnelctl keeps long-lived tunnels to Kubernetes services alive.
It runs kubectl port-forward (optionally fronted by a socat proxy for
multiple simultaneous clients), health-checks every tunnel with TCP
probes, and automatically reconnects when a tunnel dies or its port
stops responding.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed connections)
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tunnelctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "tunnel configuration file (default is ~/.config/tunnelctl/tunnels.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newEnableCmd())
	rootCmd.AddCommand(newDisableCmd())
	rootCmd.AddCommand(newNamespacesCmd())
	rootCmd.AddCommand(newServicesCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// openStore resolves the configuration path, honoring the --config flag.
func openStore() (*config.Store, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}
	return config.NewStore(path)
}

// findTunnelIndex matches a user-supplied identifier against the tunnel
// list: exact name, exact id, or unambiguous id prefix.
func findTunnelIndex(tunnels []config.TunnelConfig, arg string) (int, error) {
	for i, t := range tunnels {
		if t.Name == arg || t.ID == arg {
			return i, nil
		}
	}
	matches := []int{}
	for i, t := range tunnels {
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return -1, fmt.Errorf("no tunnel matches '%s'", arg)
	default:
		return -1, fmt.Errorf("'%s' is ambiguous, matches %d tunnels", arg, len(matches))
	}
}
