package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/heardlabs/heard/internal/provider"
)

// DefaultConfig returns the initial configuration used for onboarding.
func DefaultConfig() *Config {
	c := &Config{
		Server: ServerConfig{
			Transport: TransportStdio,
			HTTPAddr:  "127.0.0.1:8035",
			LogLevel:  "info",
		},
		Transcription: TranscriptionConfig{
			Provider: provider.ProviderDeepgram,
			Language: "",
			PoolSize: 1,
		},
		Providers: make(map[string]ProviderConfig),
	}
	c.applyDefaults()
	return c
}

// Save encodes the configuration back to the config file. Used by the
// configure wizard.
func Save(c *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveDefaultConfig writes the commented starter config.
func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	configContent := `# Heard Configuration
# log_level edits apply to a running daemon; other changes need a restart.

# RPC Server Configuration
[server]
  transport = "stdio"            # RPC transport ("stdio", "http", "both")
  http_addr = "127.0.0.1:8035"   # HTTP listen address (audio ingress + rpc + health)
  log_level = "info"             # Log verbosity ("debug", "info", "warn", "error")

# Live Transcription Configuration
[transcription]
  provider = "deepgram"          # Streaming speech-to-text provider ("deepgram" only currently)
  model = "nova-2"               # Provider model ("nova-3", "nova-2", "enhanced", "base")
  language = ""                  # Language code (empty for auto-detect, "en", "it", "es", ...)
  pool_size = 1                  # Concurrent provider connections (1 = all sessions share one)

# Provider API keys (environment variables work too, e.g. DEEPGRAM_API_KEY)
[providers.deepgram]
  api_key = ""

# Session Storage Configuration
[storage]
  path = ""                      # SQLite database path (empty = <config dir>/heard/sessions.db)

# Transcript Post-processing (used by 'heard export --polish')
[postprocessing]
  enabled = false                # Clean up exported transcripts with an LLM
  provider = "openai"            # "openai" or "groq"
  model = "gpt-4o-mini"          # Model name
  fix_grammar = true             # Fix grammar and punctuation
  remove_fillers = true          # Drop filler words ("um", "uh", ...)
  custom_prompt = ""             # Extra instructions appended to the prompt
`

	if _, err := file.WriteString(configContent); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}

	return nil
}
