package tconfig

import "github.com/google/uuid"

// ConfigSuite holds the meta information for a test suite run.
type ConfigSuite struct {
	// TestID tags a run's artifacts, data directories and log lines so
	// parallel runs on one machine do not collide.
	TestID string `mapstructure:"testid" json:"testid" yaml:"testid"`

	// Name is the human readable suite name.
	Name string `mapstructure:"name" json:"name" yaml:"name"`

	// LogLevel sets the suite logger level.
	LogLevel string `mapstructure:"loglevel" json:"loglevel" yaml:"loglevel"`

	// TConfigFile records the config file the run loaded, when one was
	// given.
	TConfigFile string `mapstructure:"tconfigfile" json:"tconfigfile" yaml:"tconfigfile"`

	// HelpOnly is set when the run was started with -help.
	HelpOnly bool `mapstructure:"helponly" json:"helponly" yaml:"helponly"`
}

// LoadConfigSuite returns the loader for the suite section.
func LoadConfigSuite() TConfigLoader {
	return func(c *TConfig) error {
		c.viper.SetDefault(KeySuiteTestID, uuid.NewString())
		c.Suite.TestID = c.viper.GetString(KeySuiteTestID)

		c.viper.SetDefault(KeySuiteName, "creditbridge-e2e")
		c.Suite.Name = c.viper.GetString(KeySuiteName)

		c.viper.SetDefault(KeySuiteLogLevel, "INFO")
		c.Suite.LogLevel = c.viper.GetString(KeySuiteLogLevel)

		return nil
	}
}
