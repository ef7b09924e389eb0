package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/core"
	"github.com/bmbridge/bmbridge/internal/hostfs"
)

// noopLogger is used by CLI subcommands that only need a bridgeconfig.Store
// or core.Bridge for a one-shot read/write, with no interest in seeing its
// logs on stderr.
func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// readJSONInput reads raw bytes from path, or from stdin when path is "-".
func readJSONInput(path string, cmd *cobra.Command) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// openBridge assembles a core.Bridge against the same on-disk capabilities
// the daemon uses, without calling Run: commands like sync/debug/status/
// profile drive it directly rather than talking to a running daemon over
// an IPC surface that doesn't exist.
func openBridge(ctx context.Context, configPath string) (*core.Bridge, error) {
	dataDir := hostfs.DefaultDataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	kv, err := hostfs.NewKVStore(filepath.Join(dataDir, "kv"))
	if err != nil {
		return nil, fmt.Errorf("init kv store: %w", err)
	}
	bookmarks, err := hostfs.NewBookmarkStore(filepath.Join(dataDir, "bookmarks.json"))
	if err != nil {
		return nil, fmt.Errorf("init bookmark store: %w", err)
	}

	deps := core.Deps{
		KV:                  kv,
		Bookmarks:           bookmarks,
		Events:              bookmarks,
		Timers:              hostfs.NewTimers(),
		Notifier:            hostfs.NewNotifier(),
		Filesystem:          hostfs.NewBillyFilesystem(filepath.Dir(configPath)),
		Watcher:             nil, // one-shot CLI invocations don't need hot-reload
		BootstrapConfigPath: filepath.Base(configPath),
		Logger:              noopLogger(),
	}
	return core.New(ctx, deps)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
