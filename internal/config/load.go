package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/heardlabs/heard/internal/provider"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	heardDir := filepath.Join(configDir, "heard")
	if err := os.MkdirAll(heardDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(heardDir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile reads and decodes a specific config file, applying defaults
// for every omitted field.
func LoadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run heard configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = TransportStdio
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8035"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Transcription.Provider == "" {
		c.Transcription.Provider = provider.ProviderDeepgram
	}
	if c.Transcription.Model == "" {
		if p, err := provider.Get(c.Transcription.Provider); err == nil {
			c.Transcription.Model = p.DefaultModel()
		}
	}
	if c.Transcription.PoolSize <= 0 {
		c.Transcription.PoolSize = 1
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	if c.Postprocessing.Provider == "" {
		c.Postprocessing.Provider = provider.ProviderOpenAI
	}
	if c.Postprocessing.Model == "" {
		c.Postprocessing.Model = "gpt-4o-mini"
	}
	// With no cleanup task picked, enable the standard ones.
	pp := &c.Postprocessing
	if !pp.FixGrammar && !pp.RemoveFillers && pp.CustomPrompt == "" {
		pp.FixGrammar = true
		pp.RemoveFillers = true
	}
}
