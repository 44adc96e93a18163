/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/boarddb/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file and an empty store",
	Long: `Write a default configuration file and create the store in its data directory.

Examples:
  boarddb init
  boarddb init --config ./boarddb.yaml --data-dir ./data --backend pebble`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")

		if config.ConfigExists(configPath) && !force {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s. Use --force to overwrite.\n", configPath)
			return nil
		}

		cfg := configFrom(cmd)
		if err := initializeStore(cfg, configPath); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "boarddb initialized\n")
		fmt.Fprintf(out, "Config: %s\n", configPath)
		fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
		fmt.Fprintf(out, "Backend: %s\n", cfg.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

// initializeStore saves cfg to configPath and creates the store
func initializeStore(cfg *config.Config, configPath string) error {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return err
	}

	if container == nil {
		return errors.New("dependency container not initialized")
	}
	svc, err := container.OpenService(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	return svc.Close()
}
