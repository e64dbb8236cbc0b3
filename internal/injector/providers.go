package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
	"github.com/zeusync/zombiebox/internal/server"
)

// ServerSet builds a Server and its collaborators from a Config.
var ServerSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideEventBus,
	ProvideHost,
	ProvideServer,
)

func ProvideLogger(cfg config.Config) *log.Logger {
	return log.New(log.ParseLevel(cfg.Log.Level))
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideHost(cfg config.Config, logger log.Log) (transport.Host, error) {
	return server.NewHost(cfg, logger)
}

func ProvideServer(cfg config.Config, host transport.Host, events bus.EventBus, logger log.Log, opts server.Options) (*server.Server, func()) {
	s := server.NewServer(cfg, host, events, logger, opts)
	return s, func() { _ = s.Close() }
}
