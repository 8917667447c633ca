package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/convostream/pkg/config"
)

const (
	envPrefix         = "CONVOSTREAM"
	defaultConfigPath = "~/.convostream/config.yaml"
)

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig layers defaults, the config file and CONVOSTREAM_* variables,
// then validates the merged result against the schema.
func loadConfig(path string) (*config.Config, error) {
	v := viper.New()
	for key, value := range config.Defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		expanded, err := config.ExpandHome(defaultConfigPath)
		if err != nil {
			return nil, err
		}
		path = expanded
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg, err := config.ParseMap(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFlags resolves the persistent flags into a configuration.
func loadFromFlags(cmd *cobra.Command) (*config.Config, error) {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", flagEnvFile, err)
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", flagConfig, err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	verbose, err := cmd.Flags().GetBool(flagVerbose)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", flagVerbose, err)
	}
	if verbose {
		cfg.Logging.DefaultLevel = config.LogLevelDebug
	}
	return cfg, nil
}
