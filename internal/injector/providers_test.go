package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/server"
)

func TestInitializeServer(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = config.TransportOffline
	cfg.Log.Level = "error"

	s, cleanup, err := InitializeServer(cfg, server.Options{})
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, s.Game())
}

func TestInitializeServerUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = "smoke-signals"
	_, _, err := InitializeServer(cfg, server.Options{})
	assert.ErrorIs(t, err, server.ErrUnknownTransport)
}
