package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/die-net/proxy-negotiate/internal/socks5"
)

const listenerSOCKS5 = "socks5"

// SOCKS5Server accepts SOCKS5 CONNECT requests and serves each one over an
// authenticated CONNECT tunnel from cfg.Tunnel.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *slog.Logger
}

// NewSOCKS5Server returns a SOCKS5Server. Canceling ctx stops Serve and
// closes in-flight connections.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: cfg.logger().With("listener", listenerSOCKS5)}
}

// Serve accepts connections on ln until ctx is canceled, in which case it
// returns nil.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	stop := context.AfterFunc(s.ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		c, err := Accept(s.ctx, ln, s.log)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(c)
	}
}

func (s *SOCKS5Server) handle(conn net.Conn) {
	defer s.cfg.Metrics.ConnOpened(listenerSOCKS5)()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.log.With("client", conn.RemoteAddr().String())

	up, err := s.handshake(ctx, conn, log)
	s.cfg.Metrics.Handshake(listenerSOCKS5, HandshakeResult(err))
	if err != nil {
		_ = conn.Close()
		logHandshakeError(log, err)
		return
	}

	stats, err := CopyBidirectional(ctx, conn, up)
	s.cfg.Metrics.Relayed(listenerSOCKS5, stats.Up, stats.Down)
	if err != nil {
		log.Info("connection closed with error", "up", stats.Up, "down", stats.Down, "err", err)
		return
	}
	log.Debug("connection closed", "up", stats.Up, "down", stats.Down)
}

func (s *SOCKS5Server) handshake(ctx context.Context, conn net.Conn, log *slog.Logger) (net.Conn, error) {
	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	req, err := socks5.Handshake(conn)
	if err != nil {
		return nil, err
	}
	log = log.With("target", req.Target)
	log.Debug("socks5 connect")

	if s.cfg.Tunnel == nil {
		socks5.WriteReply(conn, socks5.RepGeneralFailure, req.Atyp)
		return nil, errors.New("socks5: no tunnel dialer configured")
	}

	up, err := s.cfg.Tunnel.DialContext(ctx, "tcp", req.Target)
	if err != nil {
		socks5.WriteReply(conn, socks5.ReplyFor(err), req.Atyp)
		return nil, err
	}

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		_ = up.Close()
		return nil, err
	}

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}
	log.Info("tunnel established")
	return up, nil
}
