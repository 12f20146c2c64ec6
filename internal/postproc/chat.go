package postproc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/heardlabs/heard/internal/provider"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// chatPolisher drives an OpenAI-compatible chat completions API.
// Groq exposes the same wire format, so both backends share it.
type chatPolisher struct {
	name         string
	defaultModel string
	client       *openai.Client
	cfg          Config
	logger       *log.Logger
}

func newOpenAIPolisher(cfg Config, logger *log.Logger) *chatPolisher {
	return &chatPolisher{
		name:         provider.ProviderOpenAI,
		defaultModel: "gpt-4o-mini",
		client:       openai.NewClient(cfg.APIKey),
		cfg:          cfg,
		logger:       logger.WithPrefix("postproc"),
	}
}

func newGroqPolisher(cfg Config, logger *log.Logger) *chatPolisher {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = groqBaseURL
	return &chatPolisher{
		name:         provider.ProviderGroq,
		defaultModel: "llama-3.3-70b-versatile",
		client:       openai.NewClientWithConfig(clientConfig),
		cfg:          cfg,
		logger:       logger.WithPrefix("postproc"),
	}
}

func (p *chatPolisher) model() string {
	if p.cfg.Model != "" {
		return p.cfg.Model
	}
	return p.defaultModel
}

func (p *chatPolisher) Polish(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return transcript, nil
	}

	req := openai.ChatCompletionRequest{
		Model: p.model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(p.cfg)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(transcript, p.cfg.CustomPrompt)},
		},
		Temperature: 0.3, // low temperature for consistent cleanup
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty response", p.name)
	}

	polished := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.logger.Debug("polished transcript",
		"provider", p.name,
		"model", req.Model,
		"took", time.Since(start),
		"chars_in", len(transcript),
		"chars_out", len(polished),
	)
	return polished, nil
}
