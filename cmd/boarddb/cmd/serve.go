/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/boarddb/pkg/api"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the boarddb REST API server. It runs until interrupted.

Routes:
  POST   /api/v1/messages
  GET    /api/v1/messages?after_id=&limit=
  GET    /api/v1/messages/{id}
  PUT    /api/v1/messages/{id}
  DELETE /api/v1/messages/{id}
  GET    /api/v1/health
  GET    /api/v1/stats
  GET    /metrics

Examples:
  boarddb serve --port 8080
  boarddb serve --config /etc/boarddb/config.yaml --bind 0.0.0.0`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if f := cmd.Flags().Lookup("bind"); f != nil && f.Changed {
			cfg.Bind, _ = cmd.Flags().GetString("bind")
		}

		svc, err := serviceFrom(cmd)
		if err != nil {
			return err
		}
		if container == nil {
			return errors.New("dependency container not initialized")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, svc, api.ServerConfig{Port: cfg.Port, Bind: cfg.Bind}, loggerFrom(cmd))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
}
