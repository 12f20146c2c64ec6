package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Editors tend to fire several events per save; collapse them.
const reloadDebounce = 200 * time.Millisecond

// Manager holds the live configuration and hot-reloads it when the
// config file changes on disk.
type Manager struct {
	mu      sync.RWMutex
	config  *Config
	subs    []func(*Config)
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	logger  *log.Logger
}

func NewManager(logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	logger = logger.WithPrefix("config")

	config, err := Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		logger.Warn("configuration is invalid", "error", err)
	}

	return &Manager{
		config: config,
		logger: logger,
	}, nil
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// Subscribe registers a callback invoked after every successful reload.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Manager) StartWatching(ctx context.Context) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	// Watch the directory: editors replace the file on save.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx, configPath)

	m.logger.Info("watching for changes", "path", configPath)
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context, configPath string) {
	defer m.wg.Done()
	configFileName := filepath.Base(configPath)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			m.reload()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	newConfig, err := Load()
	if err != nil {
		m.logger.Warn("reload failed", "error", err)
		return
	}
	if err := newConfig.Validate(); err != nil {
		m.logger.Warn("rejecting invalid configuration", "error", err)
		return
	}

	m.mu.Lock()
	m.config = newConfig
	subs := append(([]func(*Config))(nil), m.subs...)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded")
	for _, fn := range subs {
		fn(newConfig)
	}
}
