/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/ssargent/boarddb/pkg/board"
	"github.com/ssargent/boarddb/pkg/config"
	"github.com/ssargent/boarddb/pkg/di"
	"github.com/ssargent/boarddb/pkg/log"
)

type contextKey string

const (
	serviceKey contextKey = "service"
	configKey  contextKey = "config"
	loggerKey  contextKey = "logger"

	// needsStore marks commands that run against an open store
	needsStore = "needs-store"
)

var container *di.Container

// openedService is closed by execute once the command has finished
var openedService *board.Service

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boarddb",
	Short: "boarddb - durable message board store",
	Long: `boarddb stores messages with monotonically increasing ids in a
page-oriented file and keeps them across restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		logger := log.New(cfg.Logging.Level)
		ctx := context.WithValue(cmd.Context(), configKey, cfg)
		ctx = context.WithValue(ctx, loggerKey, logger)

		if cmd.Annotations[needsStore] == "true" {
			if container == nil {
				return errors.New("dependency container not initialized")
			}
			svc, err := container.OpenService(cfg, logger)
			if err != nil {
				return err
			}
			openedService = svc
			ctx = context.WithValue(ctx, serviceKey, svc)
		}

		cmd.SetContext(ctx)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := execute(context.Background()); err != nil {
		os.Exit(1)
	}
}

// execute runs the root command and closes the store it opened, whether or
// not the command succeeded.
func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if openedService != nil {
		if closeErr := openedService.Close(); err == nil {
			err = closeErr
		}
		openedService = nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for the store")
	rootCmd.PersistentFlags().String("backend", "", "Storage backend: paged or pebble")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// resolveConfig loads the config file and environment, then applies flags
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.Load(nil, configPath)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		cfg.DataDir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("backend"); f != nil && f.Changed {
		cfg.Backend = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serviceFrom(cmd *cobra.Command) (*board.Service, error) {
	svc, ok := cmd.Context().Value(serviceKey).(*board.Service)
	if !ok {
		return nil, errors.New("store not found in context")
	}
	return svc, nil
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func loggerFrom(cmd *cobra.Command) *zerolog.Logger {
	if logger, ok := cmd.Context().Value(loggerKey).(*zerolog.Logger); ok {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}

// printJSON writes v to the command's output as indented JSON
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
