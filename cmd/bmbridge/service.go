package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/svc"
)

var (
	serviceConfigPath string
	serviceName       string
	serviceUser       string
	forceInstall      bool
	logsFollow        bool
	logsLines         int
)

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "manage bmbridge as a system service",
		Long: `Install, control, and manage bmbridge as a background system service.

Supported platforms:
  - Linux (systemd)
  - macOS (launchd)
  - Windows (Service Control Manager)

Examples:
  sudo bmbridge service install --config /etc/bmbridge/config.yaml
  sudo bmbridge service start
  sudo bmbridge service status`,
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "install bmbridge as a system service",
		Long:  "Install bmbridge as a system service that starts automatically at boot. Requires administrator/root privileges.",
		RunE:  runServiceInstall,
	}
	installCmd.Flags().StringVarP(&serviceConfigPath, "config", "c", "", "path to bootstrap config file")
	installCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	installCmd.Flags().StringVar(&serviceUser, "user", "", "run service as this user (Linux/macOS only)")
	installCmd.Flags().BoolVarP(&forceInstall, "force", "f", false, "force reinstall if service already exists")
	serviceCmd.AddCommand(installCmd)

	uninstallCmd := &cobra.Command{Use: "uninstall", Short: "remove the bmbridge system service", RunE: runServiceUninstall}
	uninstallCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	serviceCmd.AddCommand(uninstallCmd)

	startCmd := &cobra.Command{Use: "start", Short: "start the bmbridge service", RunE: runServiceStart}
	startCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	serviceCmd.AddCommand(startCmd)

	stopCmd := &cobra.Command{Use: "stop", Short: "stop the bmbridge service", RunE: runServiceStop}
	stopCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	serviceCmd.AddCommand(stopCmd)

	restartCmd := &cobra.Command{Use: "restart", Short: "restart the bmbridge service", RunE: runServiceRestart}
	restartCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	serviceCmd.AddCommand(restartCmd)

	statusCmd := &cobra.Command{Use: "status", Short: "show bmbridge service status", RunE: runServiceStatus}
	statusCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	serviceCmd.AddCommand(statusCmd)

	logsCmd := &cobra.Command{
		Use: "logs",
		Short: "view bmbridge service logs",
		Long: `View logs from the bmbridge service.

Log locations by platform:
  - Linux:   journalctl -u bmbridge
  - macOS:   log show/stream with subsystem filter
  - Windows: Event Viewer > Application log`,
		RunE: runServiceLogs,
	}
	logsCmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output (like tail -f)")
	logsCmd.Flags().IntVar(&logsLines, "lines", 50, "number of log lines to show")
	serviceCmd.AddCommand(logsCmd)

	return serviceCmd
}

func defaultServiceConfig(configPath string) *svc.ServiceConfig {
	name := serviceName
	if name == "" {
		name = svc.DefaultServiceName
	}
	if configPath == "" {
		configPath = svc.DefaultConfigPath()
	}
	return &svc.ServiceConfig{
		Name:        name,
		DisplayName: svc.DefaultDisplayName,
		Description: svc.DefaultDescription,
		ConfigPath:  configPath,
		UserName:    serviceUser,
	}
}

func getServiceConfig() *svc.ServiceConfig {
	return defaultServiceConfig(serviceConfigPath)
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	setupLogging()

	if err := svc.CheckPrivileges(); err != nil {
		return err
	}

	cfg := getServiceConfig()

	if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s\ncreate the config file first or specify a different path with --config", cfg.ConfigPath)
	}

	log.Info().Str("name", cfg.Name).Str("config", cfg.ConfigPath).Msg("installing service")

	if err := svc.Install(cfg, forceInstall); err != nil {
		return err
	}

	fmt.Printf("Service %q installed successfully.\n", cfg.Name)
	fmt.Printf("\nTo start the service:\n  bmbridge service start --name %s\n", cfg.Name)
	fmt.Printf("\nTo view logs:\n  bmbridge service logs --name %s\n", cfg.Name)
	return nil
}

func runServiceUninstall(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}
	cfg := getServiceConfig()
	log.Info().Str("name", cfg.Name).Msg("uninstalling service")
	if err := svc.Uninstall(cfg); err != nil {
		return err
	}
	fmt.Printf("Service %q uninstalled successfully.\n", cfg.Name)
	return nil
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}
	cfg := getServiceConfig()
	log.Info().Str("name", cfg.Name).Msg("starting service")
	if err := svc.Start(cfg); err != nil {
		return err
	}
	fmt.Printf("Service %q started.\n", cfg.Name)
	return nil
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}
	cfg := getServiceConfig()
	log.Info().Str("name", cfg.Name).Msg("stopping service")
	if err := svc.Stop(cfg); err != nil {
		return err
	}
	fmt.Printf("Service %q stopped.\n", cfg.Name)
	return nil
}

func runServiceRestart(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}
	cfg := getServiceConfig()
	log.Info().Str("name", cfg.Name).Msg("restarting service")
	if err := svc.Restart(cfg); err != nil {
		return err
	}
	fmt.Printf("Service %q restarted.\n", cfg.Name)
	return nil
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	setupLogging()
	cfg := getServiceConfig()

	status, err := svc.Status(cfg)
	if err != nil {
		fmt.Printf("Service: %s\nStatus:  not installed or unknown\nError:   %v\n", cfg.Name, err)
		return nil
	}

	fmt.Printf("Service: %s\n", cfg.Name)
	fmt.Printf("Status:  %s\n", svc.StatusString(status))
	fmt.Printf("Config:  %s\n", cfg.ConfigPath)
	return nil
}

func runServiceLogs(cmd *cobra.Command, args []string) error {
	cfg := getServiceConfig()
	return svc.ViewLogs(svc.LogOptions{
		ServiceName: cfg.Name,
		Follow:      logsFollow,
		Lines:       logsLines,
	})
}
