package provider

// Provider name constants for config and registry
const (
	ProviderDeepgram = "deepgram"

	// Post-processing backends; not in the streaming registry.
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
)

// Environment variable names for API keys
const (
	EnvDeepgramKey = "DEEPGRAM_API_KEY"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvGroqKey     = "GROQ_API_KEY"
)

// EnvVarForProvider returns the API-key environment variable for a provider
// name, or "" when the provider is unknown.
func EnvVarForProvider(name string) string {
	switch name {
	case ProviderOpenAI:
		return EnvOpenAIKey
	case ProviderGroq:
		return EnvGroqKey
	}
	p, err := Get(name)
	if err != nil {
		return ""
	}
	return p.EnvVar()
}
