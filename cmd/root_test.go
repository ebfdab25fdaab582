package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "tunnelctl" {
		t.Errorf("Expected Use to be 'tunnelctl', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}

	testCmd.SetVersionTemplate(`{{printf "tunnelctl version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)

	testCmd.SetArgs([]string{"--version"})
	err := testCmd.Execute()
	if err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	output := buf.String()
	expected := "tunnelctl version 1.0.0\n"
	if output != expected {
		t.Errorf("Expected version output %q, got %q", expected, output)
	}
}

func TestSubcommands(t *testing.T) {
	commands := rootCmd.Commands()

	expectedCommands := []string{
		"up", "list", "add", "remove", "enable", "disable",
		"namespaces", "services", "version", "self-update",
	}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestRootCommandHelp(t *testing.T) {
	var buf bytes.Buffer

	// Use a copy to avoid mutating the global command's output settings.
	testRootCmd := &cobra.Command{
		Use:          rootCmd.Use,
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
	}

	testRootCmd.SetOut(&buf)
	testRootCmd.SetArgs([]string{"--help"})

	err := testRootCmd.Execute()
	if err != nil {
		t.Fatalf("Error executing help command: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "tunnelctl") {
		t.Errorf("Help output should contain 'tunnelctl'. Got: %q", output)
	}

	if !strings.Contains(output, "keeps long-lived tunnels") {
		t.Errorf("Help output should contain the long description. Got: %q", output)
	}
}
