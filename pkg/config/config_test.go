package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.VaultPath)
	assert.Equal(t, "node1", cfg.NodeID)
	assert.Equal(t, 2*time.Second, cfg.DebounceWindow)
}

func TestLoadReadsVaultLocalFile(t *testing.T) {
	root := t.TempDir()
	contents := `
node_id = "custom-node"
debounce_window_ms = 500
mcp_addr = "0.0.0.0:9000"
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(contents), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "custom-node", cfg.NodeID)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, "0.0.0.0:9000", cfg.MCPAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(`node_id = "from-file"`), 0o644))
	t.Setenv("SPACENOTES_NODE_ID", "from-env")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.NodeID)
}

func TestLoadRecognizesSpecNamedEnvVars(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SPACETIME_HOST", "0.0.0.0:9191")
	t.Setenv("SPACETIME_DB", "spec-node")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9191", cfg.MCPAddr)
	assert.Equal(t, "spec-node", cfg.NodeID)
}

func TestLoadPrefixedEnvOverridesSpecNamedEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SPACETIME_DB", "from-spec-var")
	t.Setenv("SPACENOTES_NODE_ID", "from-prefixed-var")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "from-prefixed-var", cfg.NodeID)
}

func TestLoadVaultPathEnvOverridesArgument(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	t.Setenv("VAULT_PATH", other)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, other, cfg.VaultPath)
}

func TestLoadRelativeDataDirIsJoinedToVault(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".spacenotes"), cfg.DataDir)
}
