package config

// Transport selects how the daemon exposes its RPC tools.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportBoth  = "both"
)

type Config struct {
	Server         ServerConfig              `toml:"server"`
	Transcription  TranscriptionConfig       `toml:"transcription"`
	Providers      map[string]ProviderConfig `toml:"providers"`
	Storage        StorageConfig             `toml:"storage"`
	Postprocessing PostprocessingConfig      `toml:"postprocessing"`
	Keywords       []string                  `toml:"keywords"`
}

type ServerConfig struct {
	Transport string `toml:"transport"` // "stdio", "http", "both"
	HTTPAddr  string `toml:"http_addr"`
	LogLevel  string `toml:"log_level"` // "debug", "info", "warn", "error"
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"`
	Language string `toml:"language"` // empty = auto-detect
	Model    string `toml:"model"`
	PoolSize int    `toml:"pool_size"` // concurrent provider connections
}

// ProviderConfig holds the API key for a provider
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type StorageConfig struct {
	Path string `toml:"path"` // empty = default under the user config dir
}

// PostprocessingConfig configures the LLM transcript cleanup phase
type PostprocessingConfig struct {
	Enabled       bool   `toml:"enabled"`
	Provider      string `toml:"provider"`
	Model         string `toml:"model"`
	FixGrammar    bool   `toml:"fix_grammar"`
	RemoveFillers bool   `toml:"remove_fillers"`
	CustomPrompt  string `toml:"custom_prompt"`
}
