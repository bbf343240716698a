package tconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTConfig_Defaults(t *testing.T) {
	c := LoadTConfig(nil)

	assert.NotEmpty(t, c.Suite.TestID)
	assert.Equal(t, "creditbridge-e2e", c.Suite.Name)
	assert.Equal(t, "INFO", c.Suite.LogLevel)

	assert.Equal(t, "http://localhost:8290", c.Bridge.URL)
	assert.Equal(t, "ws://localhost:8350/ws", c.Bridge.GatewayURL)
	assert.Equal(t, "http://localhost:5050", c.Bridge.FaucetURL)

	assert.False(t, c.LocalSystem.SkipSetup)
	assert.False(t, c.LocalSystem.SkipTeardown)
}

func TestLoadTConfig_TestIDIsUniquePerLoad(t *testing.T) {
	a := LoadTConfig(nil)
	b := LoadTConfig(nil)

	assert.NotEqual(t, a.Suite.TestID, b.Suite.TestID)
}

func TestLoadTConfig_Overrides(t *testing.T) {
	c := LoadTConfig(map[string]any{
		KeySuiteName:      "override-run",
		KeyBridgeURL:      "http://bridge-1:9999",
		KeyBridgeContexts: []string{"docker.host.bridge1"},
	})

	assert.Equal(t, "override-run", c.Suite.Name)
	assert.Equal(t, "http://bridge-1:9999", c.Bridge.URL)
	assert.Equal(t, []string{"docker.host.bridge1"}, c.Bridge.Contexts)

	// Untouched keys keep their defaults.
	assert.Equal(t, "ws://localhost:8350/ws", c.Bridge.GatewayURL)
}

func TestLoadTConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("SUITE_NAME", "from-env")

	c := LoadTConfig(nil)

	assert.Equal(t, "from-env", c.Suite.Name)
}

func TestLoadTConfig_KVOverridesEnv(t *testing.T) {
	t.Setenv("SUITE_NAME", "from-env")

	c := LoadTConfig(map[string]any{KeySuiteName: "from-kv"})

	assert.Equal(t, "from-kv", c.Suite.Name)
}

func TestLoadTConfig_SelectedLoaders(t *testing.T) {
	c := LoadTConfig(nil, LoadConfigBridge())

	assert.Equal(t, "http://localhost:8290", c.Bridge.URL)

	// Sections without a loader stay zero.
	assert.Empty(t, c.Suite.Name)
	assert.Empty(t, c.LocalSystem.Composes)
}

func TestTConfig_StringYAML(t *testing.T) {
	c := LoadTConfig(map[string]any{KeySuiteName: "yaml-check"})

	out := c.StringYAML()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "yaml-check")
	assert.Contains(t, out, "localsystem:")
	assert.Contains(t, out, "bridge:")
}
