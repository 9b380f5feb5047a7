package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/config"
	"github.com/Eskedar21/VIMS-sub000/internal/download"
	"github.com/Eskedar21/VIMS-sub000/internal/inspection"
	"github.com/Eskedar21/VIMS-sub000/internal/photo"
	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
	"github.com/Eskedar21/VIMS-sub000/internal/remote"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
	"github.com/Eskedar21/VIMS-sub000/internal/syncer"
)

var (
	// Global flags
	cfgPath   string
	dataDir   string
	logLevel  string
	logFormat string
	envFile   string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore    *store.Store
	globalCache    *photocache.Cache
	globalRemote   *remote.Client
	globalRecorder *inspection.Recorder
	globalSync     *syncer.Service
)

// initializeComponents opens the record store and photo cache and wires the
// recorder and sync service on top of them.
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	dbPath := globalCfg.DatabasePath()
	if dbPath != ":memory:" {
		if err := os.MkdirAll(globalCfg.Server.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	st, err := store.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st

	if n, err := st.RecoverInterrupted(); err != nil {
		logger.Warn("failed to recover interrupted sync entries", "error", err)
	} else if n > 0 {
		logger.Info("requeued interrupted sync entries", "count", n)
	}

	cache, err := photocache.Open(globalCfg.PhotoCacheDir(), logger)
	if err != nil {
		// the cache only speeds up photo lookups; records still save without it
		logger.Warn("photo cache unavailable", "dir", globalCfg.PhotoCacheDir(), "error", err)
	} else {
		globalCache = cache
	}

	rc, err := newRemoteClient()
	if err != nil {
		return err
	}
	globalRemote = rc

	normalizer := photo.NewNormalizer(
		download.NewClient(logger, globalCfg.API.Timeout),
		photo.Options{
			Root:         globalCfg.Photos.Root,
			MaxBytes:     globalCfg.Photos.MaxBytes,
			MaxPixels:    globalCfg.Photos.MaxPixels,
			MaxDimension: globalCfg.Photos.MaxDimension,
			Quality:      globalCfg.Photos.Quality,
			FetchRetries: globalCfg.Photos.FetchRetries,
		},
		logger,
	)

	globalRecorder = inspection.NewRecorder(st, normalizer, globalCache, inspection.Options{
		CenterID:            globalCfg.Inspection.CenterID,
		PassThreshold:       globalCfg.Inspection.PassThreshold,
		CertificateValidity: globalCfg.Inspection.CertificateValidity,
	}, logger)

	globalSync = syncer.New(st, globalRemote, syncer.Options{
		BatchSize:      globalCfg.Sync.BatchSize,
		MaxRetries:     globalCfg.Sync.MaxRetries,
		RequestTimeout: globalCfg.Sync.RequestTimeout,
		RetryFailed:    globalCfg.Sync.RetryFailed,
	}, logger)

	logger.Debug("components initialized", "db", dbPath)
	return nil
}

func newRemoteClient() (*remote.Client, error) {
	rc, err := remote.New(remote.Options{
		BaseURL:  globalCfg.API.BaseURL,
		UseMocks: globalCfg.API.UseMocks,
		Timeout:  globalCfg.API.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	s, err := remote.LoadSession(globalCfg.SessionPath(), time.Now())
	switch {
	case err == nil:
		rc.SetToken(s.Token)
		logger.Debug("using saved session", "user", s.User.Name, "expires", s.ExpiresAt)
	case errors.Is(err, fs.ErrNotExist):
	default:
		logger.Warn("ignoring saved session", "path", globalCfg.SessionPath(), "error", err)
	}
	return rc, nil
}

// skipInit lists commands that run without the store.
var skipInit = map[string]bool{
	"vims":                true,
	"vims help":           true,
	"vims config":         true,
	"vims config show":    true,
	"vims checklist":      true,
	"vims simulate":       true,
	"vims auth":           true,
	"vims auth login":     true,
	"vims auth verify":    true,
	"vims auth handshake": true,
	"vims auth logout":    true,
}

// closeComponents closes the global store and photo cache
func closeComponents() {
	if globalCache != nil {
		if err := globalCache.Close(); err != nil {
			logger.Error("failed to close photo cache", "error", err)
		}
		globalCache = nil
	}
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vims",
		Short: "Offline agent for vehicle inspection kiosks",
		Long: `vims keeps a local record of every vehicle inspection taken at a kiosk,
caches the photos captured with it, and sends the records to the central
inspection system whenever the network allows. Records are saved locally
first, so the kiosk keeps working while offline.`,
		Example: `  vims serve
  vims save inspection.json
  vims list --plate AA-12345
  vims sync --requeue-failed
  vims status`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if err := config.LoadEnv(envFile, ".env"); err != nil {
				logger.Warn("failed to load env file", "error", err)
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}
			globalCfg.ApplyEnv()

			// Override with command-line flags if provided
			if dataDir != "" {
				globalCfg.Server.DataDir = dataDir
			}

			if !quiet {
				logger.Debug("config loaded", "path", cfgPath, "data_dir", globalCfg.Server.DataDir)
			}

			if !skipInit[cmd.CommandPath()] {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeComponents()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with VITE_API_URL and friends")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newServeCmd(),
		newSaveCmd(),
		newShowCmd(),
		newListCmd(),
		newSearchCmd(),
		newDeleteCmd(),
		newFinalizeCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newPhotosCmd(),
		newAuthCmd(),
		newSimulateCmd(),
		newChecklistCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet && level < slog.LevelError {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}
