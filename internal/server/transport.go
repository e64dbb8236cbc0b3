package server

import (
	"fmt"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
	"github.com/zeusync/zombiebox/internal/core/transport/loopback"
	"github.com/zeusync/zombiebox/internal/core/transport/quic"
	"github.com/zeusync/zombiebox/internal/core/transport/websocket"
)

// NewHost builds the transport host named by cfg.Server.Transport.
func NewHost(cfg config.Config, logger log.Log) (transport.Host, error) {
	capacity := cfg.Server.MaxParticipants
	switch cfg.Server.Transport {
	case config.TransportOffline:
		return loopback.New(false, capacity), nil
	case config.TransportWebSocket:
		return websocket.NewHost(cfg.Server.ListenAddr, capacity, logger), nil
	case config.TransportQUIC:
		tlsConf, err := quic.ServerTLSConfig(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, err
		}
		return quic.NewHost(cfg.Server.ListenAddr, capacity, tlsConf, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Server.Transport)
	}
}
