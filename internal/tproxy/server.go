package tproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/die-net/proxy-negotiate/internal/proxy"
)

const listenerName = "tproxy"

// ErrUnsupported is returned on platforms without transparent proxy support.
var ErrUnsupported = errors.New("transparent proxy is only supported on linux, freebsd and openbsd")

// Server tunnels each redirected connection to its original destination
// through cfg.Tunnel.
type Server struct {
	ctx context.Context
	cfg proxy.Config
	log *slog.Logger
}

func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{ctx: ctx, cfg: cfg, log: log.With("listener", listenerName)}
}

// Serve accepts connections on ln until ctx is canceled, in which case it
// returns nil.
func (s *Server) Serve(ln net.Listener) error {
	stop := context.AfterFunc(s.ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		c, err := proxy.Accept(s.ctx, ln, s.log)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil {
				s.log.Info("connection error", "client", c.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn) error {
	defer s.cfg.Metrics.ConnOpened(listenerName)()
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, err := OriginalDst(conn)
	if err != nil {
		return err
	}
	if s.cfg.Tunnel == nil {
		return errors.New("tproxy: no tunnel dialer configured")
	}

	up, err := s.cfg.Tunnel.DialContext(ctx, "tcp", dst.String())
	s.cfg.Metrics.Handshake(listenerName, proxy.HandshakeResult(err))
	if err != nil {
		return err
	}
	s.log.Debug("tunnel established", "client", conn.RemoteAddr().String(), "target", dst.String())

	stats, err := proxy.CopyBidirectional(ctx, conn, up)
	s.cfg.Metrics.Relayed(listenerName, stats.Up, stats.Down)
	return err
}

// localDst returns c's local address, which is the original destination for
// firewalls that redirect without NAT.
func localDst(c net.Conn) (*net.TCPAddr, error) {
	addr, ok := c.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("tproxy: %T has no TCP local address", c)
	}
	return addr, nil
}
