package tconfig

import "fmt"

// ConfigBridge holds the endpoints of the bridge deployment under test
// and the settings contexts its containers run with.
type ConfigBridge struct {
	// Contexts lists the settings contexts for the bridge containers, in
	// container order. SettingsMap turns them into the environment the
	// compose stack injects.
	Contexts []string `mapstructure:"contexts" json:"contexts" yaml:"contexts"`

	// URL is the bridge HTTP base, the surface serving /health and the
	// /bridge API group.
	URL string `mapstructure:"url" json:"url" yaml:"url"`

	// GatewayURL is the gateway websocket endpoint the bridge subscribes
	// to.
	GatewayURL string `mapstructure:"gatewayurl" json:"gatewayurl" yaml:"gatewayurl"`

	// FaucetURL is the faucet HTTP base.
	FaucetURL string `mapstructure:"fauceturl" json:"fauceturl" yaml:"fauceturl"`
}

// SettingsMap returns the environment map that hands each container its
// settings context, SETTINGS_CONTEXT_1 for the first container and so on.
func (cb *ConfigBridge) SettingsMap() map[string]string {
	kv := make(map[string]string, len(cb.Contexts))
	for i, sc := range cb.Contexts {
		kv[fmt.Sprintf("SETTINGS_CONTEXT_%d", i+1)] = sc
	}

	return kv
}

// LoadConfigBridge returns the loader for the bridge section.
func LoadConfigBridge() TConfigLoader {
	return func(c *TConfig) error {
		c.viper.SetDefault(KeyBridgeContexts, []string{"docker.ci.bridge"})
		c.Bridge.Contexts = c.viper.GetStringSlice(KeyBridgeContexts)

		c.viper.SetDefault(KeyBridgeURL, "http://localhost:8290")
		c.Bridge.URL = c.viper.GetString(KeyBridgeURL)

		c.viper.SetDefault(KeyBridgeGatewayURL, "ws://localhost:8350/ws")
		c.Bridge.GatewayURL = c.viper.GetString(KeyBridgeGatewayURL)

		c.viper.SetDefault(KeyBridgeFaucetURL, "http://localhost:5050")
		c.Bridge.FaucetURL = c.viper.GetString(KeyBridgeFaucetURL)

		return nil
	}
}
