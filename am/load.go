package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/shopper/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper
var explicitConfig string

// SetConfigFile registers a config file that takes precedence over every discovered file.
// Must be called before the first Load.
func SetConfigFile(path string) {
	explicitConfig = path
}

// Load reads the shopper configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	explicitConfig = ""
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("SHOPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	if err := mergeConfigFiles(v, ConfigPaths()); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// ConfigPaths lists candidate config files from lowest to highest precedence
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"/etc/shopper/config.toml",
		filepath.Join(homeDir, ".shopper", "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	if explicitConfig != "" {
		paths = append(paths, explicitConfig)
	}
	return paths
}

// findProjectConfig searches for shopper.toml or config.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, name := range []string{"shopper.toml", "config.toml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges existing config files in order, so later files win.
// Environment variables still take precedence because MergeConfigMap does not override them.
// Missing discovered files are skipped; a missing explicit file is an error.
func mergeConfigFiles(v *viper.Viper, paths []string) error {
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			if configPath == explicitConfig {
				return errors.WithHint(
					errors.Wrapf(err, "config file %s", configPath),
					"check the --config flag",
				)
			}
			continue
		}

		fileViper := viper.New()
		fileViper.SetConfigFile(configPath)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", configPath)
		}

		if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
			return errors.Wrapf(err, "failed to merge config file %s", configPath)
		}
	}
	return nil
}
