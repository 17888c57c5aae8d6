//go:build wireinject
// +build wireinject

package di

import (
	"MacroPull/pkg/config"
	"MacroPull/pkg/server"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// InitializeApp wires up all dependencies and returns the application.
// Snapshot metrics are registered on reg.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, reg prometheus.Registerer) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideSharedCache,
		ProvideHTTPClient,

		// Repositories
		ProvideSnapshotPublisher,
		ProvideFallbackStore,
		ProvideSources,

		// Use cases
		ProvideAggregator,
		ProvideSnapshotCache,

		// Transport
		ProvideRateLimiter,
		ProvideSnapshotHandler,
		ProvideStreamHandler,
		ProvideHTTPServer,

		// Application server
		server.New,
	)
	return &server.App{}, nil
}
