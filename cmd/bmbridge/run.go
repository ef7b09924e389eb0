package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/core"
	"github.com/bmbridge/bmbridge/internal/hostfs"
	"github.com/bmbridge/bmbridge/internal/svc"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the sync bridge in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBridge(ctx, cfgFile, log.Logger)
		},
	}
}

// runAsService is the entry point the service manager invokes: it is
// reached from main() before cobra ever parses argv, mirroring how the
// service-run flag is detected ahead of normal flag parsing.
func runAsService() {
	configPath := svc.DefaultConfigPath()
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		}
	}

	logger := setupServiceLogging()
	prg := &svc.Program{
		ConfigPath: configPath,
		Run: func(ctx context.Context, path string) error {
			return runBridge(ctx, path, logger)
		},
	}
	cfg := defaultServiceConfig(configPath)
	if err := svc.Run(prg, cfg); err != nil {
		logger.Fatal().Err(err).Msg("service run failed")
	}
}

func runBridge(ctx context.Context, configPath string, logger zerolog.Logger) error {
	dataDir := hostfs.DefaultDataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	kv, err := hostfs.NewKVStore(filepath.Join(dataDir, "kv"))
	if err != nil {
		return fmt.Errorf("init kv store: %w", err)
	}
	bookmarks, err := hostfs.NewBookmarkStore(filepath.Join(dataDir, "bookmarks.json"))
	if err != nil {
		return fmt.Errorf("init bookmark store: %w", err)
	}

	deps := core.Deps{
		KV:                  kv,
		Bookmarks:           bookmarks,
		Events:              bookmarks,
		Timers:              hostfs.NewTimers(),
		Notifier:            hostfs.NewNotifier(),
		Filesystem:          hostfs.NewBillyFilesystem(filepath.Dir(configPath)),
		Watcher:             hostfs.NewFileWatcher(),
		BootstrapConfigPath: filepath.Base(configPath),
		Logger:              logger,
	}

	b, err := core.New(ctx, deps)
	if err != nil {
		return fmt.Errorf("assemble bridge: %w", err)
	}

	logger.Info().Str("dataDir", dataDir).Str("config", configPath).Msg("bmbridge starting")
	return b.Run(ctx)
}
