package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunnelctl/internal/config"
)

func withTempStore(t *testing.T, tunnels []config.TunnelConfig) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunnels.yaml")
	if tunnels != nil {
		store, err := config.NewStore(path)
		require.NoError(t, err)
		require.NoError(t, store.Save(tunnels))
	}

	original := configPath
	configPath = path
	t.Cleanup(func() { configPath = original })
}

func loadTunnels(t *testing.T) []config.TunnelConfig {
	t.Helper()
	store, err := openStore()
	require.NoError(t, err)
	tunnels, err := store.Load()
	require.NoError(t, err)
	return tunnels
}

func TestAddCommand(t *testing.T) {
	withTempStore(t, nil)

	cmd := newAddCmd()
	cmd.SetArgs([]string{
		"--name", "grafana",
		"-n", "monitoring",
		"-s", "grafana",
		"-l", "3000",
		"-r", "3000",
	})
	require.NoError(t, cmd.Execute())

	tunnels := loadTunnels(t)
	require.Len(t, tunnels, 1)
	assert.Equal(t, "grafana", tunnels[0].Name)
	assert.Equal(t, 3000, tunnels[0].LocalPort)
	assert.True(t, tunnels[0].Enabled)
	assert.NotEmpty(t, tunnels[0].ID)
}

func TestAddCommandDuplicateName(t *testing.T) {
	withTempStore(t, []config.TunnelConfig{
		config.NewTunnelConfig("grafana", "monitoring", "grafana", 3000, 3000),
	})

	cmd := newAddCmd()
	cmd.SetArgs([]string{
		"--name", "grafana",
		"-n", "monitoring",
		"-s", "grafana",
		"-l", "3001",
		"-r", "3000",
	})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddCommandWithProxy(t *testing.T) {
	withTempStore(t, nil)

	cmd := newAddCmd()
	cmd.SetArgs([]string{
		"--name", "mimir",
		"-n", "mimir",
		"-s", "mimir-query-frontend",
		"-l", "8080",
		"-r", "8080",
		"--proxy-port", "7700",
	})
	require.NoError(t, cmd.Execute())

	tunnels := loadTunnels(t)
	require.Len(t, tunnels, 1)
	require.NotNil(t, tunnels[0].ProxyPort)
	assert.Equal(t, 7700, *tunnels[0].ProxyPort)
	assert.Equal(t, 7700, tunnels[0].EffectivePort())
}

func TestRemoveCommand(t *testing.T) {
	withTempStore(t, []config.TunnelConfig{
		config.NewTunnelConfig("grafana", "monitoring", "grafana", 3000, 3000),
		config.NewTunnelConfig("mimir", "mimir", "mimir-query-frontend", 8080, 8080),
	})

	cmd := newRemoveCmd()
	cmd.SetArgs([]string{"grafana"})
	require.NoError(t, cmd.Execute())

	tunnels := loadTunnels(t)
	require.Len(t, tunnels, 1)
	assert.Equal(t, "mimir", tunnels[0].Name)
}

func TestRemoveCommandUnknown(t *testing.T) {
	withTempStore(t, nil)

	cmd := newRemoveCmd()
	cmd.SetArgs([]string{"nope"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tunnel matches")
}

func TestEnableDisableCommands(t *testing.T) {
	withTempStore(t, []config.TunnelConfig{
		config.NewTunnelConfig("grafana", "monitoring", "grafana", 3000, 3000),
	})

	disable := newDisableCmd()
	disable.SetArgs([]string{"grafana"})
	require.NoError(t, disable.Execute())
	assert.False(t, loadTunnels(t)[0].Enabled)

	enable := newEnableCmd()
	enable.SetArgs([]string{"grafana"})
	require.NoError(t, enable.Execute())
	assert.True(t, loadTunnels(t)[0].Enabled)
}

func TestFindTunnelIndex(t *testing.T) {
	tunnels := []config.TunnelConfig{
		{ID: "aaaa1111", Name: "grafana"},
		{ID: "aaab2222", Name: "mimir"},
	}

	idx, err := findTunnelIndex(tunnels, "grafana")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = findTunnelIndex(tunnels, "aaab2222")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = findTunnelIndex(tunnels, "aaab")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = findTunnelIndex(tunnels, "aaa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = findTunnelIndex(tunnels, "zzz")
	require.Error(t, err)
}
