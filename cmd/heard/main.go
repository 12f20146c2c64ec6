package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/daemon"
	"github.com/heardlabs/heard/internal/deps"
	"github.com/heardlabs/heard/internal/tui"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "heard",
	Short: "Live transcription sessions over MCP",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		statusCmd(),
		sessionsCmd(),
		showCmd(),
		exportCmd(),
		deleteCmd(),
		micCmd(),
		configureCmd(),
		configCmd(),
		doctorCmd(),
		versionCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := log.New(os.Stderr)

	cfg, cfgManager, err := loadServeConfig(logger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyLogLevel(logger, cfg.Server.LogLevel)

	for _, check := range deps.Report(cfg, nil) {
		if !check.OK && !check.Optional {
			logger.Warn("environment check failed", "check", check.Name, "detail", check.Detail)
		}
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Version: version, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if cfgManager != nil {
		// Transport and provider wiring is built once at startup, so a
		// reload can only adjust the log level live.
		cfgManager.Subscribe(func(next *config.Config) {
			applyLogLevel(logger, next.Server.LogLevel)
			logger.Info("configuration reloaded, transport and provider changes apply on restart")
		})
		if err := cfgManager.StartWatching(ctx); err != nil {
			logger.Warn("config watcher not started", "error", err)
		} else {
			defer cfgManager.Stop()
		}
	}

	return d.Run(ctx)
}

// loadServeConfig loads the config file plus its hot-reload manager. A
// missing file is not an error for serve: MCP clients spawn the daemon
// with nothing but environment variables set.
func loadServeConfig(logger *log.Logger) (*config.Config, *config.Manager, error) {
	cfgManager, err := config.NewManager(logger)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			logger.Info("no config file found, using defaults")
			return config.DefaultConfig(), nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfgManager.GetConfig(), cfgManager, nil
}

func applyLogLevel(logger *log.Logger, level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level", "level", level)
		return
	}
	logger.SetLevel(lvl)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	pid, running := daemon.Running()
	if !running {
		fmt.Println("daemon: not running")
		return nil
	}
	fmt.Printf("daemon: running (pid %d)\n", pid)

	cfg := loadConfigOrDefault()
	if cfg.Server.Transport == config.TransportStdio {
		fmt.Println("transport: stdio")
		return nil
	}

	health, err := probeHealth(cfg.Server.HTTPAddr)
	if err != nil {
		fmt.Printf("http: unreachable at %s (%v)\n", cfg.Server.HTTPAddr, err)
		return nil
	}
	fmt.Printf("http: %s (version %s, %d active sessions)\n",
		cfg.Server.HTTPAddr, health.Version, health.ActiveSessions)
	return nil
}

// healthInfo mirrors the daemon's /healthz payload.
type healthInfo struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
}

func probeHealth(addr string) (*healthInfo, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var info healthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &info, nil
}

// loadConfigOrDefault is for commands where a broken or missing config
// should not stop a read-only operation.
func loadConfigOrDefault() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for heard.
This will guide you through setting up:
- Provider API keys (Deepgram, OpenAI, Groq)
- Live transcription settings
- RPC transport and session storage
- Transcript post-processing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.DefaultConfig()
	} else if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}
	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()
	showNextSteps()
	return nil
}

func showNextSteps() {
	fmt.Println("Next Steps:")
	step := 1
	if pid, running := daemon.Running(); running {
		fmt.Printf("%d. Restart the daemon to apply the changes (pid %d)\n", step, pid)
	} else {
		fmt.Printf("%d. Start the daemon: heard serve\n", step)
	}
	step++
	fmt.Printf("%d. Check the environment: heard doctor\n", step)
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(configPathCmd(), configShowCmd(), configInitCmd())
	return cmd
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(os.Stdout)
		},
	}
}

func runConfigShow(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	redactKeys(cfg)
	return toml.NewEncoder(w).Encode(cfg)
}

// redactKeys blanks API keys so config show is safe to paste into bug
// reports.
func redactKeys(cfg *config.Config) {
	for name, pc := range cfg.Providers {
		if pc.APIKey != "" {
			pc.APIKey = "<set>"
			cfg.Providers[name] = pc
		}
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the commented starter config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.SaveDefaultConfig(); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	cfg, cfgErr := config.Load()
	checks := deps.Report(cfg, cfgErr)

	for _, check := range checks {
		fmt.Println(checkLine(check))
	}
	fmt.Println()

	if !deps.Healthy(checks) {
		return errors.New("environment is not ready, fix the checks above")
	}
	fmt.Println("everything looks good")
	return nil
}

func checkLine(c deps.Check) string {
	mark := "[x]"
	if !c.OK {
		mark = "[ ]"
	}
	line := fmt.Sprintf("%s %s", mark, c.Name)
	if c.Optional {
		line += " (optional)"
	}
	if c.Detail != "" {
		line += fmt.Sprintf(" - %s", c.Detail)
	}
	return line
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the heard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("heard %s\n", version)
		},
	}
}
