// bmbridge is the bidirectional bookmark sync bridge CLI and daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/logging/loki"
	"github.com/bmbridge/bmbridge/internal/svc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgFile  string
	logLevel string
	lokiURL  string

	serviceRun bool
)

func main() {
	if svc.IsServiceMode(os.Args) {
		runAsService()
		return
	}

	rootCmd := &cobra.Command{
		Use:   "bmbridge",
		Short: "bmbridge synchronizes local bookmarks with a remote note-bridge",
		Long: `bmbridge watches a local bookmark tree and keeps it mirrored
against a remote note-bridge over a persistent WebSocket session, with
an HTTP fallback for when that session can't be kept alive.`,
		Version: Version,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", svc.DefaultConfigPath(), "bootstrap config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&lokiURL, "loki-url", "", "ship logs to this Grafana Loki instance in addition to stderr")

	rootCmd.PersistentFlags().BoolVar(&serviceRun, "service-run", false, "run as a service (internal use)")
	_ = rootCmd.PersistentFlags().MarkHidden("service-run")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging()
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newSyncCmd(),
		newDebugCmd(),
		newStatusCmd(),
		newProfileCmd(),
		newServiceCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var lokiWriter *loki.Writer

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	if lokiURL == "" {
		log.Logger = log.Output(console)
		return
	}

	lokiWriter = loki.NewWriter(loki.Config{
		URL:    lokiURL,
		Labels: map[string]string{"version": Version},
	})
	lokiWriter.Start()
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, lokiWriter))
	log.Info().Str("url", lokiURL).Msg("shipping logs to loki")
}

// setupServiceLogging writes to a file rather than stderr, since the
// service manager does not reliably capture a background process's
// standard streams.
func setupServiceLogging() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logPath := defaultServiceLogPath()
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return logger
	}

	var out io.Writer = logFile
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func defaultServiceLogPath() string {
	dir := svc.DefaultConfigPath()
	return fmt.Sprintf("%s.log", dir)
}
