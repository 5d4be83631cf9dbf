// Package config provides configuration management for treebind using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration supports YAML files, environment variable overrides with
// the TREEBIND_ prefix, and validation. It covers the session (root name,
// representation strategy), the document file the CLI mirrors, the
// inspector server, and logging.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Document DocumentConfig `yaml:"document"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type SessionConfig struct {
	// Name is the root node name; defaults to the document file's base name.
	Name string `yaml:"name"`
	// Strategy selects the external representation: "folder" or "attribute".
	Strategy string `yaml:"strategy"`
}

type DocumentConfig struct {
	Path string `yaml:"path"`
	// WriteBack persists externally-originated edits to the document file.
	WriteBack bool `yaml:"write_back"`
	// Debounce is the file-watch debounce window in milliseconds.
	Debounce int `yaml:"debounce"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load unmarshals the current viper state into a Config and applies
// defaults and validation.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle values set via viper keys (workaround for viper nested
	// struct handling when values come from flags or env only).
	if viper.IsSet("session.strategy") && config.Session.Strategy == "" {
		config.Session.Strategy = viper.GetString("session.strategy")
	}
	if viper.IsSet("document.path") && config.Document.Path == "" {
		config.Document.Path = viper.GetString("document.path")
	}
	if viper.IsSet("document.write_back") {
		config.Document.WriteBack = viper.GetBool("document.write_back")
	}
	if viper.IsSet("log-level") && config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Session.Strategy == "" {
		c.Session.Strategy = "folder"
	}
	if c.Document.Debounce <= 0 {
		c.Document.Debounce = 100
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8321
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"localhost", "127.0.0.1"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func validate(c *Config) error {
	switch c.Session.Strategy {
	case "folder", "attribute":
	default:
		return fmt.Errorf("invalid session.strategy %q: must be folder or attribute", c.Session.Strategy)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}

	return nil
}
