package config

import (
	"fmt"

	"github.com/heardlabs/heard/internal/language"
	"github.com/heardlabs/heard/internal/provider"
)

func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP, TransportBoth:
	default:
		return fmt.Errorf("invalid server.transport: %s (must be stdio, http, or both)", c.Server.Transport)
	}
	if c.Server.Transport != TransportStdio && c.Server.HTTPAddr == "" {
		return fmt.Errorf("invalid server.http_addr: empty (required for transport %q)", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid server.log_level: %s (must be debug, info, warn, or error)", c.Server.LogLevel)
	}

	p, err := provider.Get(c.Transcription.Provider)
	if err != nil {
		return fmt.Errorf("unsupported transcription.provider: %s (must be %s)", c.Transcription.Provider, provider.ProviderDeepgram)
	}
	if c.Transcription.Model == "" {
		return fmt.Errorf("invalid transcription.model: empty")
	}
	if !provider.HasModel(p.Name(), c.Transcription.Model) {
		return fmt.Errorf("invalid model for %s: %s (run heard configure to pick one)", p.Name(), c.Transcription.Model)
	}
	if c.Transcription.Language != "" && !language.IsValidCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or codes like 'en', 'en-US', 'it')", c.Transcription.Language)
	}
	if c.Transcription.PoolSize < 1 {
		return fmt.Errorf("invalid transcription.pool_size: %d (must be at least 1)", c.Transcription.PoolSize)
	}

	if c.Postprocessing.Enabled {
		validPostproc := map[string]bool{provider.ProviderOpenAI: true, provider.ProviderGroq: true}
		if !validPostproc[c.Postprocessing.Provider] {
			return fmt.Errorf("invalid postprocessing.provider: %s (must be openai or groq)", c.Postprocessing.Provider)
		}
		if c.Postprocessing.Model == "" {
			return fmt.Errorf("postprocessing.model required when postprocessing.enabled = true")
		}
	}

	return nil
}
