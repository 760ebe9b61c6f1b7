package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for mdhl.
type Config struct {
	RootDir  string         `toml:"root_dir"` // directory of Markdown files to serve
	Listen   string         `toml:"listen"`   // HTTP listen address, e.g. "127.0.0.1:4810"
	LogDir   string         `toml:"log_dir"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Backup   BackupConfig   `toml:"backup"`
	Export   ExportConfig   `toml:"export"`
}

// ServerConfig holds rendering-related settings.
type ServerConfig struct {
	Theme  string   `toml:"theme"`  // chroma style name for fenced code blocks
	Ignore []string `toml:"ignore"` // directory names excluded from the file tree
}

// DatabaseConfig represents configuration for the highlight database.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BackupConfig holds the location of backup snapshots.
type BackupConfig struct {
	// CacheDir overrides the default per-user cache location
	// (os.UserCacheDir()/mdhl/backups) when non-empty.
	CacheDir string `toml:"cache_dir,omitempty"`
}

// ExportConfig holds the location of written export documents.
type ExportConfig struct {
	Dir string `toml:"dir"`
}

// NewConfig creates a Config for rootDir with defaults rooted at baseDir.
func NewConfig(rootDir, baseDir string) *Config {
	return &Config{
		RootDir: rootDir,
		Listen:  "127.0.0.1:4810",
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Theme:  "github",
			Ignore: []string{".git", "node_modules"},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Export: ExportConfig{
			Dir: filepath.Join(baseDir, "exports"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
// Fails if one already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
