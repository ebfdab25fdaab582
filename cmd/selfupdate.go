package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository releases are fetched from.
const githubRepoSlug = "tunnelctl/tunnelctl"

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update tunnelctl to the latest released version",
		Long: `Checks for the latest release on GitHub and replaces the current
binary with it when a newer version is available.`,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	version := rootCmd.Version
	if version == "" || version == "dev" {
		return fmt.Errorf("cannot self-update a development version, please download a released binary")
	}

	ctx := context.Background()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("error checking for latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", githubRepoSlug)
	}

	if latest.LessOrEqual(version) {
		fmt.Printf("Current version %s is the latest\n", version)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Printf("Updating to version %s...\n", latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version %s\n", latest.Version())
	return nil
}
