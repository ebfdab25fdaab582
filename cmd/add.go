package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tunnelctl/internal/config"
)

func newAddCmd() *cobra.Command {
	var (
		name       string
		namespace  string
		service    string
		localPort  int
		remotePort int
		proxyPort  int
		directExec bool
		disabled   bool
		noNotify   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a tunnel to the configuration",
		Long: `Adds a tunnel and persists it. The tunnel is started the next time
'tunnelctl up' runs. Use --proxy-port to put a socat listener in front
of the port-forward so multiple clients can connect, and --direct for
the single-process variant that handles concurrent connections natively.`,
		Example: `  tunnelctl add --name grafana -n monitoring -s grafana -l 3000 -r 3000
  tunnelctl add --name mimir -n mimir -s mimir-query-frontend -l 8080 -r 8080 --proxy-port 7700`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewTunnelConfig(name, namespace, service, localPort, remotePort)
			if proxyPort != 0 {
				cfg.ProxyPort = &proxyPort
			}
			cfg.DirectExec = directExec
			cfg.Enabled = !disabled
			if noNotify {
				cfg.NotifyOnConnect = false
				cfg.NotifyOnDisconnect = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			tunnels, err := store.Load()
			if err != nil {
				return err
			}
			for _, t := range tunnels {
				if t.Name == cfg.Name {
					return fmt.Errorf("a tunnel named '%s' already exists", cfg.Name)
				}
			}
			tunnels = append(tunnels, cfg)
			if err := store.Save(tunnels); err != nil {
				return err
			}

			fmt.Printf("Added tunnel '%s' (%s)\n", cfg.Name, shortID(cfg.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the tunnel (required)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "target namespace (required)")
	cmd.Flags().StringVarP(&service, "service", "s", "", "target service (required)")
	cmd.Flags().IntVarP(&localPort, "local-port", "l", 0, "local port for the port-forward (required)")
	cmd.Flags().IntVarP(&remotePort, "remote-port", "r", 0, "service port on the cluster side (required)")
	cmd.Flags().IntVar(&proxyPort, "proxy-port", 0, "expose a shared proxy listener on this port")
	cmd.Flags().BoolVar(&directExec, "direct", false, "use the single-process strategy (requires --proxy-port)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the tunnel without enabling it")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "disable connect/disconnect notifications")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("local-port")
	_ = cmd.MarkFlagRequired("remote-port")

	return cmd
}
