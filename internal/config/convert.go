package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/heardlabs/heard/internal/postproc"
	"github.com/heardlabs/heard/internal/provider"
	"github.com/heardlabs/heard/internal/stream"
)

// ResolveAPIKey returns the API key for a provider, preferring the
// config over the provider's environment variable.
func (c *Config) ResolveAPIKey(providerName string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}
	if envVar := provider.EnvVarForProvider(providerName); envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

// ToStreamConfig builds the streaming client configuration.
func (c *Config) ToStreamConfig() (stream.Config, error) {
	p, err := provider.Get(c.Transcription.Provider)
	if err != nil {
		return stream.Config{}, err
	}
	return stream.Config{
		Name:     p.Name(),
		APIKey:   c.ResolveAPIKey(p.Name()),
		Model:    c.Transcription.Model,
		Endpoint: p.Endpoint(),
	}, nil
}

// ToPostprocConfig builds the transcript cleanup configuration.
func (c *Config) ToPostprocConfig() postproc.Config {
	return postproc.Config{
		Provider:      c.Postprocessing.Provider,
		APIKey:        c.ResolveAPIKey(c.Postprocessing.Provider),
		Model:         c.Postprocessing.Model,
		FixGrammar:    c.Postprocessing.FixGrammar,
		RemoveFillers: c.Postprocessing.RemoveFillers,
		CustomPrompt:  c.Postprocessing.CustomPrompt,
		Keywords:      c.Keywords,
	}
}

// IsPostprocessingEnabled returns true when LLM cleanup is enabled and
// configured.
func (c *Config) IsPostprocessingEnabled() bool {
	return c.Postprocessing.Enabled && c.Postprocessing.Provider != "" && c.Postprocessing.Model != ""
}

// StoragePath resolves the SQLite database path, creating the default
// directory when the config leaves it empty.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	heardDir := filepath.Join(configDir, "heard")
	if err := os.MkdirAll(heardDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	return filepath.Join(heardDir, "sessions.db"), nil
}
