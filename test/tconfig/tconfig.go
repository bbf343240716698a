package tconfig

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// TConfigLoader loads one configuration section into a TConfig.
type TConfigLoader func(c *TConfig) error

// TConfig holds the flat configuration for an end to end run: suite
// metadata, the local compose system under test and the endpoints of the
// bridge deployment the suite talks to.
type TConfig struct {
	// viper backs the load order: programmatic overrides first, then
	// environment variables, then the optional config file, then defaults.
	viper *viper.Viper

	// Suite holds the meta information for a test suite run.
	Suite ConfigSuite `mapstructure:"suite" json:"suite" yaml:"suite"`

	// LocalSystem describes the compose stack under test.
	LocalSystem ConfigLocalSystem `mapstructure:"localsystem" json:"localsystem" yaml:"localsystem"`

	// Bridge holds the endpoints of the bridge deployment being tested.
	Bridge ConfigBridge `mapstructure:"bridge" json:"bridge" yaml:"bridge"`
}

// LoadAllConfig returns a loader running every section loader. This is
// used when the caller does not pick specific sections.
func LoadAllConfig() TConfigLoader {
	return func(c *TConfig) error {
		allLoaders := []TConfigLoader{
			LoadConfigSuite(),
			LoadConfigLocalSystem(),
			LoadConfigBridge(),
		}

		for _, load := range allLoaders {
			if err := load(c); err != nil {
				panic(err)
			}
		}

		return nil
	}
}

// LoadTConfig loads configured values into a TConfig.
//
// kv holds programmatic overrides. They take precedence over environment
// variables and config files. Pass nil when there is nothing to override.
func LoadTConfig(kv map[string]any, loaders ...TConfigLoader) TConfig {
	c := TConfig{}
	c.initViper()

	for key, value := range kv {
		c.Set(key, value)
	}

	// If the caller does not pick sections, load them all
	if len(loaders) == 0 {
		loadAll := LoadAllConfig()
		if err := loadAll(&c); err != nil {
			panic(err)
		}

		return c
	}

	for _, load := range loaders {
		if err := load(&c); err != nil {
			panic(err)
		}
	}

	return c
}

// StringYAML returns the config in yaml form, for logging the effective
// setup at suite start.
func (c *TConfig) StringYAML() string {
	strYAML, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Error marshalling to YAML: %v\n", err)
	}

	return string(strYAML)
}

// Set records a programmatic override for key.
func (c *TConfig) Set(k string, v any) {
	c.viper.Set(k, v)
}

// initViper prepares the viper instance backing the TConfig. It parses
// the suite flags, enables environment variables and reads the optional
// config file, accepting .env as well as the formats viper knows natively
// (.yaml, .json).
func (c *TConfig) initViper() {
	if c.viper != nil {
		return
	}

	localFlags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	localFlags.Usage = func() {}     // Disable undesired printout usage of flag
	localFlags.SetOutput(io.Discard) // Disable undesired printout usage of flag

	tconfigFile := localFlags.String("tconfig-file", "", "Path to the test configuration file")
	skipSetup := localFlags.Bool("skip-setup", false, "Skip setting up the local system")
	skipTeardown := localFlags.Bool("skip-teardown", false, "Skip tearing down the local system")
	helpOnly := localFlags.Bool("help", false, "Print help message")

	if err := localFlags.Parse(os.Args[1:]); err != nil {
		fmt.Printf("WARNING parsing flags for tconfig: %v\n", err)
	}

	c.Suite.HelpOnly = *helpOnly

	c.viper = viper.New()
	c.viper.AutomaticEnv()
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// If -tconfig-file is given, it has to be a good config file
	if *tconfigFile != "" {
		if c.isEnvFile(*tconfigFile) {
			// Viper maps my.key to MY_KEY for environment variables but
			// not inside .env files, so .env files go through dotenv into
			// the environment first. dotenv does not override variables
			// that are already set, which keeps the priority order intact.
			if err := godotenv.Load(*tconfigFile); err != nil {
				panic(err)
			}

			c.Suite.TConfigFile = *tconfigFile
		} else {
			c.viper.SetConfigFile(*tconfigFile)

			if err := c.viper.ReadInConfig(); err != nil {
				panic(err)
			}

			c.Suite.TConfigFile = *tconfigFile
		}
	}

	if *skipSetup {
		// Promote the flag to the same level as a key/value override
		c.Set(KeyLocalSystemSkipSetup, true)
	}

	if *skipTeardown {
		c.Set(KeyLocalSystemSkipTeardown, true)
	}
}

// isEnvFile checks if the file is a dotenv file.
func (c *TConfig) isEnvFile(f string) bool {
	ext := filepath.Ext(f)
	if len(ext) > 1 {
		return ext[1:] == "env"
	}

	return false
}
