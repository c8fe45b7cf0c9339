package proxy

import (
	"log/slog"
	"time"

	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/metrics"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
)

type Config struct {
	// Upstream is the host:port of the proxy that requires Negotiate auth.
	Upstream string

	// Provider issues a fresh token for every client connection.
	Provider negotiate.Provider

	// Dialer connects to Upstream.
	Dialer dialer.Dialer

	// Tunnel opens authenticated CONNECT tunnels through Upstream for the
	// SOCKS5 and transparent front-ends.
	Tunnel dialer.Dialer

	// NegotiationTimeout bounds reading the client's header or SOCKS5
	// handshake. It is cleared before relaying. Zero disables it.
	NegotiationTimeout time.Duration

	// MaxHeaderBytes caps a client's header block.
	MaxHeaderBytes int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
