package tconfig

// ConfigLocalSystem holds the compose files and related information used
// to stand up and tear down the local system under test.
type ConfigLocalSystem struct {
	// Composes lists the docker compose files to bring up for the suite.
	// An empty list means the suite expects an already running system.
	Composes []string `mapstructure:"composes" json:"composes" yaml:"composes"`

	// DataDir is the base path for test data shared with the local system.
	DataDir string `mapstructure:"datadir" json:"datadir" yaml:"datadir"`

	// SkipSetup forces the suite to skip standing the local system up.
	// Useful when rerunning tests against a stack that is already running.
	SkipSetup bool `mapstructure:"skipsetup" json:"skipsetup" yaml:"skipsetup"`

	// SkipTeardown forces the suite to leave the local system running
	// after the tests finish, so its state can be inspected afterwards.
	SkipTeardown bool `mapstructure:"skipteardown" json:"skipteardown" yaml:"skipteardown"`
}

// LoadConfigLocalSystem returns the loader for the localsystem section.
func LoadConfigLocalSystem() TConfigLoader {
	return func(c *TConfig) error {
		c.viper.SetDefault(KeyLocalSystemComposes, []string{"../../docker-compose.e2e.yml"})
		c.LocalSystem.Composes = c.viper.GetStringSlice(KeyLocalSystemComposes)

		c.viper.SetDefault(KeyLocalSystemDataDir, "../../data/test")
		c.LocalSystem.DataDir = c.viper.GetString(KeyLocalSystemDataDir)

		c.viper.SetDefault(KeyLocalSystemSkipSetup, false)
		c.LocalSystem.SkipSetup = c.viper.GetBool(KeyLocalSystemSkipSetup)

		c.viper.SetDefault(KeyLocalSystemSkipTeardown, false)
		c.LocalSystem.SkipTeardown = c.viper.GetBool(KeyLocalSystemSkipTeardown)

		return nil
	}
}
