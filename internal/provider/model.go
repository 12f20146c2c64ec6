package provider

// Model represents a streaming transcription model with its metadata.
type Model struct {
	ID          string // unique identifier (e.g., "nova-2")
	Name        string // display name (e.g., "Nova 2")
	Description string // short description
}

// EndpointConfig holds a provider's streaming endpoint configuration.
type EndpointConfig struct {
	BaseURL string // e.g., "wss://api.deepgram.com"
	Path    string // e.g., "/v1/listen"
}
