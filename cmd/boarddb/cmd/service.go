/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ssargent/boarddb/pkg/config"
)

const (
	serviceName = "boarddb.service"
	unitPath    = "/etc/systemd/system/" + serviceName
	binaryPath  = "/usr/local/bin/boarddb"
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage boarddb as a systemd service",
	Long: `Manage boarddb as a systemd service. The unit runs "boarddb serve"
against a config file and restarts on failure.`,
}

// installServiceCmd represents the service install command
var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install boarddb as a systemd service",
	Long: `Install boarddb as a systemd service.

This will:
- Create or reuse the configuration file
- Write the systemd unit file
- Enable and optionally start the service

Examples:
  boarddb service install
  boarddb service install --data-dir /var/lib/boarddb --user boarddb`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		user, _ := cmd.Flags().GetString("user")
		startNow, _ := cmd.Flags().GetBool("start")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		if os.Geteuid() != 0 {
			return errors.New("service install requires root privileges, run with: sudo boarddb service install")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🔧 Installing boarddb systemd service...\n")

		cfg := configFrom(cmd)
		if err := config.SaveConfig(cfg, configPath); err != nil {
			return err
		}

		if err := os.WriteFile(unitPath, []byte(renderSystemdUnit(cfg, configPath, user)), 0600); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}

		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		if err := runSystemctlCommand("enable", serviceName); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
		fmt.Fprintf(out, "✅ Service enabled\n")

		if startNow {
			if err := runSystemctlCommand("start", serviceName); err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
			fmt.Fprintf(out, "✅ Service started\n")
		}

		fmt.Fprintf(out, "Service: %s\nConfig: %s\nData: %s\nListen: %s:%d\n",
			serviceName, configPath, cfg.DataDir, cfg.Bind, cfg.Port)
		fmt.Fprintf(out, "To view logs: sudo journalctl -u %s -f\n", serviceName)
		return nil
	},
}

// systemctlCmd builds a subcommand that forwards to systemctl
func systemctlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemctlCommand(action, serviceName)
		},
	}
}

// logsCmd represents the service logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show boarddb service logs",
	Long: `Show boarddb service logs using journalctl.

Examples:
  boarddb service logs
  boarddb service logs -f`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		return runCommand("journalctl", journalArgs(follow, lines)...)
	},
}

// uninstallCmd represents the service uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the boarddb service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() != 0 {
			return errors.New("service uninstall requires root privileges, run with: sudo boarddb service uninstall")
		}

		_ = runSystemctlCommand("stop", serviceName) // may already be stopped
		if err := runSystemctlCommand("disable", serviceName); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not disable service: %v\n", err)
		}

		if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✅ boarddb service uninstalled\nConfiguration and data files were not removed\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installServiceCmd)
	serviceCmd.AddCommand(systemctlCmd("start", "Start the boarddb service"))
	serviceCmd.AddCommand(systemctlCmd("stop", "Stop the boarddb service"))
	serviceCmd.AddCommand(systemctlCmd("restart", "Restart the boarddb service"))
	serviceCmd.AddCommand(systemctlCmd("status", "Show boarddb service status"))
	serviceCmd.AddCommand(logsCmd)
	serviceCmd.AddCommand(uninstallCmd)

	installServiceCmd.Flags().String("user", "boarddb", "User to run the service as")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}

// renderSystemdUnit returns the unit file for running boarddb serve with configPath
func renderSystemdUnit(cfg *config.Config, configPath, user string) string {
	return fmt.Sprintf(`[Unit]
Description=boarddb message store
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binaryPath, configPath, cfg.DataDir, filepath.Dir(configPath))
}

func journalArgs(follow bool, lines int) []string {
	args := []string{"-u", serviceName}
	if follow {
		args = append(args, "-f")
	}
	if lines > 0 {
		args = append(args, fmt.Sprintf("-n%d", lines))
	}
	return args
}

// runSystemctlCommand runs a systemctl command
func runSystemctlCommand(args ...string) error {
	return runCommand("systemctl", args...)
}

// runCommand runs a system command and returns its error
func runCommand(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
