package dialer

import (
	"log/slog"
	"net"
	"time"

	"github.com/die-net/proxy-negotiate/internal/metrics"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// MaxHeaderBytes caps the proxy's response header block.
	MaxHeaderBytes int

	Provider negotiate.Provider
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
