// Package api provides factory implementations for dependency injection
package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer starts the API server registering metrics with the default
// prometheus registry
func (s *DefaultServerStarter) StartServer(
	ctx context.Context,
	service MessageService,
	config ServerConfig,
	logger *zerolog.Logger,
) error {
	return StartServer(ctx, service, config, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}
