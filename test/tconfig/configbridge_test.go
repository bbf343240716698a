package tconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigBridge(t *testing.T) {
	t.Run("SettingsMap", func(t *testing.T) {
		cb := ConfigBridge{Contexts: []string{"contextA", "contextB", "contextC"}}
		kv := cb.SettingsMap()
		assert.Equal(t, "contextA", kv["SETTINGS_CONTEXT_1"])
		assert.Equal(t, "contextB", kv["SETTINGS_CONTEXT_2"])
		assert.Equal(t, "contextC", kv["SETTINGS_CONTEXT_3"])
	})

	t.Run("SettingsMap empty", func(t *testing.T) {
		cb := ConfigBridge{}
		assert.Empty(t, cb.SettingsMap())
	})
}
