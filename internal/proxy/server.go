package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/metrics"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
	"github.com/die-net/proxy-negotiate/internal/preamble"
)

const listenerHTTP = "http"

var (
	// ErrServerClosed is returned by Serve after the server was closed.
	ErrServerClosed = errors.New("proxy: server closed")

	// ErrAlreadyClosed is returned by a second call to Close.
	ErrAlreadyClosed = errors.New("proxy: server already closed")
)

// Server is the authenticating forward proxy.
//
// Every accepted connection is handled independently: its request header is
// read, a Negotiate token for the upstream proxy host is injected as
// Proxy-Authorization, and the connection is relayed verbatim to Upstream.
// A failure on one connection never affects the listener or other
// connections.
type Server struct {
	cfg          Config
	log          *slog.Logger
	upstreamHost string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeUsed bool
	listeners []net.Listener
	conns     sync.WaitGroup
}

// NewServer constructs a Server. Canceling ctx shuts it down like Close,
// except that it never reports ErrAlreadyClosed.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	host, _, err := net.SplitHostPort(cfg.Upstream)
	if err != nil {
		host = cfg.Upstream
	}

	s := &Server{
		cfg:          cfg,
		log:          cfg.logger(),
		upstreamHost: host,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	context.AfterFunc(s.ctx, func() { _ = s.shutdown() })
	return s
}

// Serve accepts connections on ln until the server is closed, then returns
// ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	for {
		c, err := Accept(s.ctx, ln, s.log)
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return ErrServerClosed
		}
		s.conns.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.conns.Done()
			s.handle(c)
		}()
	}
}

// Close stops the listeners and closes every in-flight connection. Close may
// only be called once; later calls return ErrAlreadyClosed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closeUsed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.closeUsed = true
	s.mu.Unlock()

	s.log.Info("closing listener socket")
	err := s.shutdown()
	s.cancel()
	return err
}

// Done is closed once the server has been closed or its context canceled.
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() {
	s.conns.Wait()
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lns := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	var errs []error
	for _, ln := range lns {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handle(client net.Conn) {
	defer s.cfg.Metrics.ConnOpened(listenerHTTP)()

	log := s.log.With("client", client.RemoteAddr().String(), "upstream", s.cfg.Upstream)
	log.Info("accepted")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Unblocks a pending header read or dial on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	upstream, err := s.handshake(ctx, client, log)
	s.cfg.Metrics.Handshake(listenerHTTP, HandshakeResult(err))
	if err != nil {
		_ = client.Close()
		logHandshakeError(log, err)
		return
	}

	stats, err := CopyBidirectional(ctx, client, upstream)
	s.cfg.Metrics.Relayed(listenerHTTP, stats.Up, stats.Down)
	if err != nil {
		log.Info("connection closed with error", "up", stats.Up, "down", stats.Down, "err", err)
		return
	}
	log.Debug("connection closed", "up", stats.Up, "down", stats.Down)
}

// handshake runs the steps up to relaying and returns the upstream
// connection with the rewritten header already sent.
func (s *Server) handshake(ctx context.Context, client net.Conn, log *slog.Logger) (net.Conn, error) {
	if s.cfg.NegotiationTimeout > 0 {
		_ = client.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	req, err := preamble.Read(client, s.cfg.MaxHeaderBytes)
	if err != nil {
		return nil, fmt.Errorf("read request header: %w", err)
	}
	log.Debug("request", "line", string(req.FirstLine()))

	token, err := s.cfg.Provider.Token(ctx, s.upstreamHost)
	s.cfg.Metrics.Token(err)
	if err != nil {
		_ = writeError(client, http.StatusBadGateway, err)
		return nil, err
	}

	upstream, err := s.cfg.Dialer.DialContext(ctx, "tcp", s.cfg.Upstream)
	if err != nil {
		_ = writeError(client, http.StatusBadGateway, err)
		return nil, err
	}

	if _, err := upstream.Write(req.WithAuthorization(token)); err != nil {
		_ = upstream.Close()
		return nil, fmt.Errorf("%w: write request: %w", dialer.ErrUpstreamConnect, err)
	}

	if s.cfg.NegotiationTimeout > 0 {
		_ = client.SetDeadline(time.Time{})
	}
	return upstream, nil
}

// writeError answers a client whose request cannot be forwarded.
func writeError(w io.Writer, code int, err error) error {
	_, werr := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n\r\n%s\r\n", code, http.StatusText(code), err.Error())
	return werr
}

// HandshakeResult maps a handshake error to its metrics result label.
func HandshakeResult(err error) string {
	var statusErr *dialer.StatusError
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, preamble.ErrConnectionClosed):
		return metrics.ResultClosed
	case errors.Is(err, preamble.ErrTooLarge):
		return metrics.ResultTooLarge
	case errors.Is(err, negotiate.ErrAuthentication), errors.Is(err, dialer.ErrProxyAuthFailed):
		return metrics.ResultAuthFailed
	case errors.Is(err, dialer.ErrUpstreamConnect):
		return metrics.ResultUpstreamFailed
	case errors.As(err, &statusErr):
		return metrics.ResultProxyStatus
	default:
		return metrics.ResultError
	}
}

func logHandshakeError(log *slog.Logger, err error) {
	switch HandshakeResult(err) {
	case metrics.ResultClosed:
		log.Info("client closed connection before sending a complete header")
	case metrics.ResultAuthFailed:
		log.Warn("negotiate authentication failed", "err", err)
	case metrics.ResultUpstreamFailed:
		log.Warn("cannot reach upstream proxy", "err", err)
	default:
		log.Warn("handshake failed", "err", err)
	}
}
