package app

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mdhl/internal/backup"
	"mdhl/internal/config"
	"mdhl/internal/database"
	"mdhl/internal/hl"
	"mdhl/internal/server"
	"mdhl/internal/watch"
)

// App is the application layer between the CLI and the highlight service.
// It constructs all dependencies from config and manages their lifecycle.
type App struct {
	cfg     *config.Config
	store   hl.Store
	backups *backup.Store
	service *hl.Service
	server  *server.Server
	watcher *watch.Watcher
	logger  hl.Logger
	logFile *os.File
}

// New creates a fully wired App from the given config. The caller must call
// Close when done.
func New(cfg *config.Config) (*App, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root_dir is not configured")
	}
	rootDir, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}
	if info, err := os.Stat(rootDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("root_dir is not a directory: %s", rootDir)
	}

	slogger, logFile, err := newLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	backups, err := backup.NewStore(cfg.Backup.CacheDir)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating backup store: %w", err)
	}

	service := hl.NewService(store, backups, cfg.Export.Dir, logger, hl.RealClock{}, hl.UUIDGenerator{})

	srv, err := server.New(rootDir, cfg.Server.Theme, cfg.Server.Ignore, service, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		backups: backups,
		service: service,
		server:  srv,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Service returns the highlight service for CLI commands that bypass HTTP.
func (a *App) Service() *hl.Service {
	return a.service
}

// Handler returns the HTTP handler for all routes.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ScanRoot walks the served root and registers a resource row for every
// Markdown file and directory found. Idempotent; already-known paths are
// left untouched.
func (a *App) ScanRoot() error {
	rootDir, err := filepath.Abs(a.cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolving root directory: %w", err)
	}

	return filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			_, err := a.service.RegisterResource(path, hl.KindDirectory)
			return err
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		_, err = a.service.RegisterResource(path, hl.KindFile)
		return err
	})
}

// StartWatcher begins routing filesystem events under the root into the
// service (resource registration, bulk cleanup on edit).
func (a *App) StartWatcher() error {
	rootDir, err := filepath.Abs(a.cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolving root directory: %w", err)
	}
	w, err := watch.New(rootDir, a.service, a.logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	w.Start()
	a.watcher = w
	return nil
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			firstErr = fmt.Errorf("closing watcher: %w", err)
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
