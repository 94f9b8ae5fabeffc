// This file defines the configuration structure for the application.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all static configuration settings. It maps directly to the
// structure of config.yml. Runtime-mutable settings (rate ceilings, folder
// sorting) live in the settings table instead.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Downloads struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"downloads"`
	Indexer struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"indexer"`
	MetadataSite struct {
		BaseURL  string `mapstructure:"base_url"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"metadata_site"`
	MetadataAPI struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"metadata_api"`
}

// Load reads configuration from a file named "config.yml" in the current
// directory and unmarshals it into a Config struct. Environment variables
// with an "HIBIKI_" prefix override file values, e.g. HIBIKI_DATABASE_PATH.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("HIBIKI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./hibiki.db")
	viper.SetDefault("downloads.path", "./downloads")
	viper.SetDefault("indexer.base_url", "https://nyaa.si")
	viper.SetDefault("metadata_site.base_url", "https://anidb.net")
	viper.SetDefault("metadata_api.url", "https://graphql.anilist.co")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; fall back to defaults and env vars.
		} else {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
