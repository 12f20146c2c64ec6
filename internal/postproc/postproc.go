// Package postproc polishes finished transcripts with an LLM cleanup pass.
package postproc

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/heardlabs/heard/internal/provider"
)

// Config selects the chat backend and the cleanup tasks to request.
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	FixGrammar    bool
	RemoveFillers bool
	CustomPrompt  string
	Keywords      []string
}

// Polisher rewrites a transcript according to the configured tasks.
type Polisher interface {
	Polish(ctx context.Context, transcript string) (string, error)
}

// New builds a Polisher for the configured provider.
func New(cfg Config, logger *log.Logger) (Polisher, error) {
	switch cfg.Provider {
	case provider.ProviderOpenAI:
		if err := requireKey(cfg); err != nil {
			return nil, err
		}
		return newOpenAIPolisher(cfg, logger), nil
	case provider.ProviderGroq:
		if err := requireKey(cfg); err != nil {
			return nil, err
		}
		return newGroqPolisher(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported postprocessing provider %q", cfg.Provider)
	}
}

func requireKey(cfg Config) error {
	if cfg.APIKey != "" {
		return nil
	}
	return fmt.Errorf("%s api key required: set %s or run heard configure", cfg.Provider, provider.EnvVarForProvider(cfg.Provider))
}
