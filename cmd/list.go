package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured tunnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			tunnels, err := store.Load()
			if err != nil {
				return err
			}
			if len(tunnels) == 0 {
				fmt.Println("No tunnels configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTARGET\tPORT\tPROXY\tENABLED")
			for _, t := range tunnels {
				proxy := "-"
				if t.HasProxy() {
					proxy = fmt.Sprintf("%d", *t.ProxyPort)
					if t.DirectExec {
						proxy += " (direct)"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s/%s:%d\t%d\t%s\t%t\n",
					shortID(t.ID), t.Name, t.Namespace, t.Service, t.RemotePort,
					t.LocalPort, proxy, t.Enabled)
			}
			return w.Flush()
		},
	}
}

// shortID truncates a UUID for table display. Lookup commands accept the
// prefix as well as the full id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
