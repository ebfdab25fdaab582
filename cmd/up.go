package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tunnelctl/internal/orchestrator"
)

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start all enabled tunnels and keep them alive",
		Long: `Starts every enabled tunnel from the configuration file and runs the
supervision loop in the foreground. Tunnels that die or stop responding
are reconnected automatically. Press Ctrl+C to stop; all managed
processes are torn down on exit.`,
		RunE: runUp,
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Options{Store: store})
	if err := orch.Load(); err != nil {
		return err
	}

	tunnels := orch.Tunnels()
	if len(tunnels) == 0 {
		fmt.Println("No tunnels configured. Add one with 'tunnelctl add'.")
		return nil
	}

	fmt.Printf("Starting %d tunnel(s)...\n", len(tunnels))
	orch.StartAllEnabled()

	for _, cfg := range tunnels {
		rt := orch.Runtime(cfg.ID)
		if rt == nil {
			continue
		}
		snap := rt.Snapshot()
		status := snap.Primary.String()
		if snap.LastError != "" {
			status += " (" + snap.LastError + ")"
		}
		fmt.Printf("  %-20s %s/%s -> 127.0.0.1:%d  [%s]\n",
			cfg.Name, cfg.Namespace, cfg.Service, cfg.EffectivePort(), status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(done)
	}()

	fmt.Println("Supervision loop running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nReceived interrupt signal. Shutting down...")
	cancel()
	<-done

	orch.StopAll()
	fmt.Println("All tunnels stopped.")
	return nil
}
