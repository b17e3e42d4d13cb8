package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/gridvar/core/storage"
)

const fileName = "config.yaml"

type Manager struct {
	config      atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	logger      *slog.Logger

	watchers  []func(*Config)
	watcherMu sync.RWMutex

	watchMu   sync.Mutex
	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Variants  VariantsConfig  `yaml:"variants"`
	ChangeLog ChangeLogConfig `yaml:"changelog"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

type VariantsConfig struct {
	InitialID   string `yaml:"initial_id"`
	MultiThread bool   `yaml:"multi_thread"`
	WorkerLimit int    `yaml:"worker_limit"`
}

type ChangeLogConfig struct {
	CacheSize         int                 `yaml:"cache_size"`
	IgnoredAttributes []string            `yaml:"ignored_attributes"`
	IgnoredByKind     map[string][]string `yaml:"ignored_by_kind"`
}

type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	CacheEntries int64  `yaml:"cache_entries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Option func(*Manager)

// WithProjectRoot sets the directory holding .gridvar/. Defaults to ".".
func WithProjectRoot(root string) Option {
	return func(m *Manager) {
		m.projectRoot = root
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(dirs *storage.Dirs, opts ...Option) *Manager {
	m := &Manager{
		dirs:        dirs,
		projectRoot: ".",
		logger:      slog.Default(),
		stopWatch:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Variants: VariantsConfig{
			InitialID:   "InitialState",
			WorkerLimit: 4,
		},
		ChangeLog: ChangeLogConfig{
			CacheSize: 64,
		},
		Audit: AuditConfig{
			CacheEntries: 128,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

// Load layers project, user and local files over the defaults, then applies
// GRIDVAR_* environment variables. Later layers win.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadProjectConfig(cfg); err != nil {
		return fmt.Errorf("project config: %w", err)
	}

	if err := m.loadUserConfig(cfg); err != nil {
		return fmt.Errorf("user config: %w", err)
	}

	if err := m.loadLocalConfig(cfg); err != nil {
		return fmt.Errorf("local config: %w", err)
	}

	if err := applyEnvironment(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) paths() []string {
	projectDirs := storage.ResolveProjectDirs(m.projectRoot)
	paths := []string{projectDirs.Config}
	if m.dirs != nil {
		paths = append(paths, m.dirs.ConfigDir(fileName))
	}
	return append(paths, filepath.Join(projectDirs.Local, fileName))
}

func (m *Manager) loadProjectConfig(cfg *Config) error {
	projectDirs := storage.ResolveProjectDirs(m.projectRoot)
	return LoadFile(projectDirs.Config, cfg)
}

func (m *Manager) loadUserConfig(cfg *Config) error {
	if m.dirs == nil {
		return nil
	}
	return LoadFile(m.dirs.ConfigDir(fileName), cfg)
}

func (m *Manager) loadLocalConfig(cfg *Config) error {
	projectDirs := storage.ResolveProjectDirs(m.projectRoot)
	return LoadFile(filepath.Join(projectDirs.Local, fileName), cfg)
}

// LoadFile decodes a YAML file over cfg. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func applyEnvironment(cfg *Config) error {
	if v := os.Getenv("GRIDVAR_INITIAL_VARIANT"); v != "" {
		cfg.Variants.InitialID = v
	}
	if v := os.Getenv("GRIDVAR_MULTI_THREAD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GRIDVAR_MULTI_THREAD: %w", err)
		}
		cfg.Variants.MultiThread = b
	}
	if v := os.Getenv("GRIDVAR_WORKER_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDVAR_WORKER_LIMIT: %w", err)
		}
		cfg.Variants.WorkerLimit = n
	}
	if v := os.Getenv("GRIDVAR_CHANGELOG_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDVAR_CHANGELOG_CACHE_SIZE: %w", err)
		}
		cfg.ChangeLog.CacheSize = n
	}
	if v := os.Getenv("GRIDVAR_CHANGELOG_IGNORE"); v != "" {
		for _, attr := range strings.Split(v, ",") {
			if attr = strings.TrimSpace(attr); attr != "" {
				cfg.ChangeLog.IgnoredAttributes = append(cfg.ChangeLog.IgnoredAttributes, attr)
			}
		}
	}
	if v := os.Getenv("GRIDVAR_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("GRIDVAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GRIDVAR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	return nil
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

// Watch reloads the configuration whenever one of its files is written,
// until ctx is done or the manager is closed. Reload failures are logged and
// keep the previous configuration.
func (m *Manager) Watch(ctx context.Context) error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	files := make(map[string]struct{})
	for _, path := range m.paths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files[abs] = struct{}{}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch directory: %w", err)
		}
	}

	m.watcher = watcher
	go m.watchLoop(ctx, watcher, files)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, files map[string]struct{}) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopWatch:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				abs = event.Name
			}
			if _, tracked := files[abs]; !tracked {
				continue
			}
			if err := m.Reload(); err != nil {
				m.logger.Warn("config reload failed", slog.String("path", abs), slog.String("error", err.Error()))
				continue
			}
			m.logger.Info("config reloaded", slog.String("path", abs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}
