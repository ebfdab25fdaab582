package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tunnelctl/internal/kube"
)

var kubeContext string

func newNamespacesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespaces",
		Short: "List namespaces in the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := kube.NewClient(kubeContext)
			if err != nil {
				return err
			}
			names, err := client.ListNamespaces(context.Background())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kubeContext, "context", "", "kubeconfig context to use (default is the current context)")
	return cmd
}

func newServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services <namespace>",
		Short: "List services and their ports in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := kube.NewClient(kubeContext)
			if err != nil {
				return err
			}
			services, err := client.ListServices(context.Background(), args[0])
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Printf("No services found in namespace '%s'\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tPORT\tPORT NAME")
			for _, svc := range services {
				if len(svc.Ports) == 0 {
					fmt.Fprintf(w, "%s\t-\t-\n", svc.Name)
					continue
				}
				for _, p := range svc.Ports {
					name := p.Name
					if name == "" {
						name = "-"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\n", svc.Name, p.Port, name)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kubeContext, "context", "", "kubeconfig context to use (default is the current context)")
	return cmd
}
