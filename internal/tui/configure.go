// Package tui is the interactive configuration wizard behind
// heard configure.
package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/language"
	"github.com/heardlabs/heard/internal/provider"
)

// ConfigureResult carries the edited config out of the wizard.
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// keyProviders are the backends a user can store API keys for.
var keyProviders = []string{"deepgram", "openai", "groq"}

var providerDisplayNames = map[string]string{
	"deepgram": "Deepgram",
	"openai":   "OpenAI",
	"groq":     "Groq",
}

type section string

const (
	sectionKeys          section = "keys"
	sectionTranscription section = "transcription"
	sectionServer        section = "server"
	sectionStorage       section = "storage"
	sectionPostproc      section = "postprocessing"
	sectionKeywords      section = "keywords"
	sectionSaveExit      section = "save_exit"
	sectionDiscardExit   section = "discard_exit"
)

// Run drives the menu loop over cfg until the user saves or discards.
// The caller persists the result.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		sec, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch sec {
		case sectionSaveExit:
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case sectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case sectionKeys:
			_ = editAPIKeys(cfg)
		case sectionTranscription:
			_ = editTranscription(cfg)
		case sectionServer:
			_ = editServer(cfg)
		case sectionStorage:
			_ = editStorage(cfg)
		case sectionPostproc:
			_ = editPostprocessing(cfg)
		case sectionKeywords:
			_ = editKeywords(cfg)
		}
		// esc inside an editor falls back to this menu
	}
}

func selectSection(cfg *config.Config) (section, error) {
	options := []huh.Option[section]{
		huh.NewOption(apiKeysLabel(cfg), sectionKeys),
		huh.NewOption(transcriptionLabel(cfg), sectionTranscription),
		huh.NewOption(serverLabel(cfg), sectionServer),
		huh.NewOption(storageLabel(cfg), sectionStorage),
		huh.NewOption(postprocLabel(cfg), sectionPostproc),
		huh.NewOption(keywordsLabel(cfg), sectionKeywords),
		huh.NewOption("Save & Exit", sectionSaveExit),
		huh.NewOption("Discard & Exit", sectionDiscardExit),
	}

	var selected section
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[section]().
				Title("heard configuration").
				Description("↑/↓ navigate • enter select • esc discard").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func displayName(name string) string {
	if dn, ok := providerDisplayNames[name]; ok {
		return dn
	}
	return name
}

// maskAPIKey shortens a key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func apiKeysLabel(cfg *config.Config) string {
	configured := 0
	for _, pc := range cfg.Providers {
		if pc.APIKey != "" {
			configured++
		}
	}
	return fmt.Sprintf("API Keys (%d configured)", configured)
}

func transcriptionLabel(cfg *config.Config) string {
	lang := "auto-detect"
	if cfg.Transcription.Language != "" {
		lang = language.FromCode(cfg.Transcription.Language).Name
	}
	return fmt.Sprintf("Transcription (%s %s, %s)", cfg.Transcription.Provider, cfg.Transcription.Model, lang)
}

func serverLabel(cfg *config.Config) string {
	if cfg.Server.Transport == config.TransportStdio {
		return "Server (stdio)"
	}
	return fmt.Sprintf("Server (%s, %s)", cfg.Server.Transport, cfg.Server.HTTPAddr)
}

func storageLabel(cfg *config.Config) string {
	if cfg.Storage.Path == "" {
		return "Storage (default location)"
	}
	return fmt.Sprintf("Storage (%s)", cfg.Storage.Path)
}

func postprocLabel(cfg *config.Config) string {
	if !cfg.Postprocessing.Enabled {
		return "Post-processing (off)"
	}
	return fmt.Sprintf("Post-processing (%s %s)", cfg.Postprocessing.Provider, cfg.Postprocessing.Model)
}

func keywordsLabel(cfg *config.Config) string {
	if len(cfg.Keywords) == 0 {
		return "Keywords (none)"
	}
	return fmt.Sprintf("Keywords (%s)", strings.Join(cfg.Keywords, ", "))
}

func keyOption(cfg *config.Config, name string) string {
	dn := displayName(name)
	if pc, ok := cfg.Providers[name]; ok && pc.APIKey != "" {
		return fmt.Sprintf("%s (%s)", dn, maskAPIKey(pc.APIKey))
	}
	if envVar := provider.EnvVarForProvider(name); envVar != "" && os.Getenv(envVar) != "" {
		return fmt.Sprintf("%s (from %s)", dn, envVar)
	}
	return fmt.Sprintf("%s (not configured)", dn)
}

func editAPIKeys(cfg *config.Config) error {
	for {
		options := make([]huh.Option[string], 0, len(keyProviders)+1)
		for _, name := range keyProviders {
			options = append(options, huh.NewOption(keyOption(cfg, name), name))
		}
		options = append(options, huh.NewOption("Done", "back"))

		var selected string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("API Keys").
					Description("Keys set here override environment variables").
					Options(options...).
					Value(&selected),
			),
		).WithTheme(getTheme())

		if err := form.Run(); err != nil {
			return err
		}
		if selected == "back" {
			return nil
		}

		key, err := promptAPIKey(cfg, selected)
		if err != nil {
			continue
		}
		if key != "" {
			if cfg.Providers == nil {
				cfg.Providers = make(map[string]config.ProviderConfig)
			}
			cfg.Providers[selected] = config.ProviderConfig{APIKey: key}
		}
	}
}

// promptAPIKey confirms before replacing an existing key, then reads a
// new one. Returns "" when the user keeps the current key.
func promptAPIKey(cfg *config.Config, name string) (string, error) {
	dn := displayName(name)

	if pc, ok := cfg.Providers[name]; ok && pc.APIKey != "" {
		var update bool
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s API Key", dn)).
					Description(fmt.Sprintf("Current: %s", maskAPIKey(pc.APIKey))).
					Affirmative("Update key").
					Negative("Keep current").
					Value(&update),
			),
		).WithTheme(getTheme())
		if err := confirm.Run(); err != nil {
			return "", err
		}
		if !update {
			return "", nil
		}
	}

	var key string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s API Key", dn)).
				EchoMode(huh.EchoModePassword).
				Value(&key).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("API key is required")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func providerOptions() []huh.Option[string] {
	names := provider.List()
	options := make([]huh.Option[string], 0, len(names))
	for _, name := range names {
		p, err := provider.Get(name)
		if err != nil {
			continue
		}
		options = append(options, huh.NewOption(p.DisplayName(), name))
	}
	return options
}

func modelOptions(providerName string) []huh.Option[string] {
	p, err := provider.Get(providerName)
	if err != nil {
		return nil
	}
	models := p.Models()
	options := make([]huh.Option[string], 0, len(models))
	for _, m := range models {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", m.Name, m.Description), m.ID))
	}
	return options
}

func languageOptions() []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(language.List())+1)
	options = append(options, huh.NewOption("Auto-detect", ""))
	for _, l := range language.List() {
		options = append(options, huh.NewOption(l.Name, l.Code))
	}
	return options
}

func validatePoolSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("pool size must be a number >= 1")
	}
	return nil
}

func editTranscription(cfg *config.Config) error {
	providerName := cfg.Transcription.Provider

	providerForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Streaming Provider").
				Options(providerOptions()...).
				Value(&providerName),
		),
	).WithTheme(getTheme())
	if err := providerForm.Run(); err != nil {
		return err
	}

	model := cfg.Transcription.Model
	if !provider.HasModel(providerName, model) {
		if p, err := provider.Get(providerName); err == nil {
			model = p.DefaultModel()
		}
	}
	lang := cfg.Transcription.Language
	pool := strconv.Itoa(cfg.Transcription.PoolSize)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model").
				Options(modelOptions(providerName)...).
				Value(&model),
			huh.NewSelect[string]().
				Title("Language").
				Options(languageOptions()...).
				Value(&lang),
			huh.NewInput().
				Title("Connection pool size").
				Description("Streaming connections shared across sessions").
				Value(&pool).
				Validate(validatePoolSize),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Provider = providerName
	cfg.Transcription.Model = model
	cfg.Transcription.Language = lang
	cfg.Transcription.PoolSize, _ = strconv.Atoi(strings.TrimSpace(pool))
	return nil
}

func editServer(cfg *config.Config) error {
	transport := cfg.Server.Transport
	addr := cfg.Server.HTTPAddr
	logLevel := cfg.Server.LogLevel

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transport").
				Options(
					huh.NewOption("stdio (spawned by the MCP client)", config.TransportStdio),
					huh.NewOption("http (long-running daemon)", config.TransportHTTP),
					huh.NewOption("both", config.TransportBoth),
				).
				Value(&transport),
			huh.NewInput().
				Title("HTTP address").
				Description("Serves the RPC endpoint, audio ingress and health checks").
				Value(&addr),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&logLevel),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}

	if addr == "" && transport != config.TransportStdio {
		addr = config.DefaultConfig().Server.HTTPAddr
	}
	cfg.Server.Transport = transport
	cfg.Server.HTTPAddr = addr
	cfg.Server.LogLevel = logLevel
	return nil
}

func editStorage(cfg *config.Config) error {
	path := cfg.Storage.Path

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session database path").
				Description("Leave empty for the default under the user config dir").
				Value(&path),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Storage.Path = strings.TrimSpace(path)
	return nil
}

func editPostprocessing(cfg *config.Config) error {
	enabled := cfg.Postprocessing.Enabled

	enableForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Polish exported transcripts with an LLM?").
				Description("Used by heard export --polish").
				Affirmative("Enable").
				Negative("Disable").
				Value(&enabled),
		),
	).WithTheme(getTheme())
	if err := enableForm.Run(); err != nil {
		return err
	}
	if !enabled {
		cfg.Postprocessing.Enabled = false
		return nil
	}

	providerName := cfg.Postprocessing.Provider
	if providerName == "" {
		providerName = "openai"
	}
	model := cfg.Postprocessing.Model
	tasks := selectedTasks(cfg)
	prompt := cfg.Postprocessing.CustomPrompt

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM Provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Groq", "groq"),
				).
				Value(&providerName),
			huh.NewInput().
				Title("Model").
				Description("gpt-4o-mini for OpenAI, llama-3.3-70b-versatile for Groq").
				Value(&model).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("model is required")
					}
					return nil
				}),
			huh.NewMultiSelect[string]().
				Title("Cleanup tasks").
				Options(
					huh.NewOption("Fix grammar", "grammar").Selected(cfg.Postprocessing.FixGrammar),
					huh.NewOption("Remove filler words", "fillers").Selected(cfg.Postprocessing.RemoveFillers),
				).
				Value(&tasks),
			huh.NewInput().
				Title("Custom prompt (optional)").
				Value(&prompt),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Postprocessing.Enabled = true
	cfg.Postprocessing.Provider = providerName
	cfg.Postprocessing.Model = strings.TrimSpace(model)
	cfg.Postprocessing.FixGrammar = containsTask(tasks, "grammar")
	cfg.Postprocessing.RemoveFillers = containsTask(tasks, "fillers")
	cfg.Postprocessing.CustomPrompt = strings.TrimSpace(prompt)
	return nil
}

func selectedTasks(cfg *config.Config) []string {
	var tasks []string
	if cfg.Postprocessing.FixGrammar {
		tasks = append(tasks, "grammar")
	}
	if cfg.Postprocessing.RemoveFillers {
		tasks = append(tasks, "fillers")
	}
	return tasks
}

func containsTask(tasks []string, name string) bool {
	for _, t := range tasks {
		if t == name {
			return true
		}
	}
	return false
}

func editKeywords(cfg *config.Config) error {
	joined := strings.Join(cfg.Keywords, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Keywords").
				Description("Comma-separated terms the transcriber should spell correctly").
				Value(&joined),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Keywords = parseKeywords(joined)
	return nil
}

// parseKeywords splits a comma-separated list, dropping empties.
func parseKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()

	lang := "auto-detect"
	if cfg.Transcription.Language != "" {
		lang = cfg.Transcription.Language
	}
	fmt.Printf("  %s %s (%s), language %s, pool %d\n",
		StyleLabel.Render("Transcription:"),
		cfg.Transcription.Provider, cfg.Transcription.Model, lang, cfg.Transcription.PoolSize)

	if cfg.Server.Transport == config.TransportStdio {
		fmt.Printf("  %s stdio\n", StyleLabel.Render("Server:"))
	} else {
		fmt.Printf("  %s %s on %s\n", StyleLabel.Render("Server:"), cfg.Server.Transport, cfg.Server.HTTPAddr)
	}

	if cfg.Storage.Path == "" {
		fmt.Printf("  %s default location\n", StyleLabel.Render("Storage:"))
	} else {
		fmt.Printf("  %s %s\n", StyleLabel.Render("Storage:"), cfg.Storage.Path)
	}

	if cfg.Postprocessing.Enabled {
		fmt.Printf("  %s %s (%s)\n", StyleLabel.Render("Post-processing:"),
			cfg.Postprocessing.Provider, cfg.Postprocessing.Model)
	} else {
		fmt.Printf("  %s off\n", StyleLabel.Render("Post-processing:"))
	}

	if len(cfg.Keywords) > 0 {
		fmt.Printf("  %s %s\n", StyleLabel.Render("Keywords:"), strings.Join(cfg.Keywords, ", "))
	}
	fmt.Println()

	if err := cfg.Validate(); err != nil {
		fmt.Println(StyleError.Render("Invalid configuration: " + err.Error()))
		fmt.Println(StyleMuted.Render("Fix the highlighted section before saving."))
		fmt.Println()

		var back bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Back to menu").
					Affirmative("OK").
					Negative("Discard changes").
					Value(&back),
			),
		).WithTheme(getTheme())
		if err := form.Run(); err != nil {
			return false, err
		}
		if !back {
			return false, fmt.Errorf("discarded")
		}
		return false, nil
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Back").
				Value(&confirmed),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func clearScreen() {
	termenv.NewOutput(os.Stdout).ClearScreen()
}
