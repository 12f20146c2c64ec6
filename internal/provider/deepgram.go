package provider

// DeepgramProvider streams over Deepgram's live listen API.
type DeepgramProvider struct{}

func (p *DeepgramProvider) Name() string {
	return ProviderDeepgram
}

func (p *DeepgramProvider) DisplayName() string {
	return "Deepgram"
}

func (p *DeepgramProvider) EnvVar() string {
	return EnvDeepgramKey
}

func (p *DeepgramProvider) DefaultModel() string {
	return "nova-2"
}

func (p *DeepgramProvider) Models() []Model {
	return []Model{
		{
			ID:          "nova-3",
			Name:        "Nova 3",
			Description: "Latest general model, best accuracy",
		},
		{
			ID:          "nova-2",
			Name:        "Nova 2",
			Description: "Fast general model, good accuracy",
		},
		{
			ID:          "enhanced",
			Name:        "Enhanced",
			Description: "Older tier, broader language coverage",
		},
		{
			ID:          "base",
			Name:        "Base",
			Description: "Cheapest tier",
		},
	}
}

func (p *DeepgramProvider) Endpoint() EndpointConfig {
	return EndpointConfig{
		BaseURL: "wss://api.deepgram.com",
		Path:    "/v1/listen",
	}
}
