package hostfs

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the platform-appropriate directory for the
// daemon's local state: the KV store files and the bookmark tree.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("ProgramData"); dir != "" {
			return filepath.Join(dir, "bmbridge")
		}
		return filepath.Join(os.Getenv("APPDATA"), "bmbridge")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "bmbridge")
	default:
		if os.Geteuid() == 0 {
			return "/var/lib/bmbridge"
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "bmbridge")
	}
}
