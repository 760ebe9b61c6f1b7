package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mdhl/internal/app"
	"mdhl/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer Close.
func newApp() (*app.App, *config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "mdhl",
	Short: "Serve local Markdown with durable text highlights",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitRoot string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		rootDir, err := filepath.Abs(configInitRoot)
		if err != nil {
			return fmt.Errorf("resolving root directory: %w", err)
		}

		cfg := config.NewConfig(rootDir, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Root Dir: %s\n", rootDir)
		fmt.Printf("Listen:   %s\n", cfg.Listen)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Root Dir:   %s\n", cfg.RootDir)
		fmt.Printf("Listen:     %s\n", cfg.Listen)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Export Dir: %s\n", cfg.Export.Dir)
		return nil
	},
}

// serve command

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured directory over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ScanRoot(); err != nil {
			return fmt.Errorf("scanning root directory: %w", err)
		}
		if err := a.StartWatcher(); err != nil {
			return err
		}

		srv := &http.Server{Addr: cfg.Listen, Handler: a.Handler()}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		fmt.Printf("Serving %s on http://%s\n", cfg.RootDir, cfg.Listen)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// export command

var exportCmd = &cobra.Command{
	Use:   "export [directory]",
	Short: "Export a directory's highlights to a Markdown document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dir := cfg.RootDir
		if len(args) == 1 {
			dir = args[0]
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving directory: %w", err)
		}

		result, err := a.Service().Export(absDir, filepath.Base(absDir))
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d highlight(s) to %s\n", result.Count, result.Path)
		return nil
	},
}

// restore command

var restoreTimestamped bool

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore a file from its first-highlight backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		outPath, err := a.Service().RestoreResource(absPath, restoreTimestamped)
		if err != nil {
			return err
		}

		fmt.Printf("Restored to %s\n", outPath)
		return nil
	},
}

// backups command

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage backup snapshots",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Service().ListBackups()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %s  %8d bytes  %s\n",
				info.CreatedAt.Format("2006-01-02 15:04:05"), info.ResourceID, info.Size, info.OriginalName)
		}
		return nil
	},
}

var backupsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all backup snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		count, bytes, err := a.Service().ClearBackups()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d backup(s), freed %d bytes\n", count, bytes)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitRoot, "root", ".", "directory of Markdown files to serve")
	restoreCmd.Flags().BoolVar(&restoreTimestamped, "timestamped", false, "write a timestamped copy instead of overwriting")

	configCmd.AddCommand(configInitCmd, configListCmd)
	backupsCmd.AddCommand(backupsListCmd, backupsClearCmd)
	rootCmd.AddCommand(configCmd, serveCmd, exportCmd, restoreCmd, backupsCmd)
}
