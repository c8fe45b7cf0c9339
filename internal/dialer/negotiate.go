package dialer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/die-net/proxy-negotiate/internal/preamble"
)

// NegotiateDialer opens CONNECT tunnels through an HTTP proxy that requires
// Negotiate authentication.
//
// The CONNECT request is first sent without credentials. If the proxy answers
// 407, a token for the proxy host is fetched and the request is resent once
// with a Proxy-Authorization line, on the same connection when the proxy kept
// it open and on a fresh one otherwise. There is no further retry.
type NegotiateDialer struct {
	cfg       Config
	proxyAddr string
	proxyHost string
	direct    Dialer
	log       *slog.Logger
}

// NewNegotiateDialer returns a dialer for the proxy at proxyAddr (host:port).
func NewNegotiateDialer(cfg Config, proxyAddr string) *NegotiateDialer {
	host, _, err := net.SplitHostPort(proxyAddr)
	if err != nil {
		host = proxyAddr
	}

	return &NegotiateDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		proxyHost: host,
		direct:    NewDirectDialer(cfg),
		log:       cfg.logger().With("proxy", proxyAddr),
	}
}

// ProxyAddr returns the proxy host:port.
func (d *NegotiateDialer) ProxyAddr() string {
	return d.proxyAddr
}

// Direct returns the underlying direct dialer used to reach the proxy.
func (d *NegotiateDialer) Direct() Dialer {
	return d.direct
}

// Tunnel is an established CONNECT tunnel.
type Tunnel struct {
	net.Conn

	// Pending holds bytes that arrived after the 200 response header in the
	// same read. They are tunnel payload, not proxy protocol.
	Pending []byte

	// Authenticated reports whether the proxy demanded a Negotiate token.
	Authenticated bool
}

// ConnectRequest returns the header lines of an unauthenticated CONNECT
// request for target.
func ConnectRequest(target string) [][]byte {
	return [][]byte{
		[]byte("CONNECT " + target + " HTTP/1.1"),
		[]byte("Host: " + target),
		[]byte("Proxy-Connection: Keep-Alive"),
	}
}

func encodeRequest(lines [][]byte) []byte {
	return append(bytes.Join(lines, []byte("\r\n")), "\r\n\r\n"...)
}

// Connect performs the CONNECT handshake for target and returns the tunnel.
//
// A final 407 yields ErrProxyAuthFailed, any status other than 200 or 407 a
// *StatusError, and a token failure an error wrapping
// negotiate.ErrAuthentication.
func (d *NegotiateDialer) Connect(ctx context.Context, target string) (*Tunnel, error) {
	log := d.log.With("target", target)

	s := &session{d: d, ctx: ctx}
	defer s.close()

	req := ConnectRequest(target)
	if err := s.dial(); err != nil {
		return nil, err
	}
	if err := s.write(encodeRequest(req)); err != nil {
		return nil, s.fail(err)
	}
	resp, err := s.read()
	if err != nil {
		return nil, s.fail(err)
	}
	status, err := resp.Status()
	if err != nil {
		return nil, &StatusError{Line: string(resp.FirstLine())}
	}
	log.Debug("proxy response", "status", status.Code, "message", status.Message)

	authenticated := false
	if status.Code == http.StatusProxyAuthRequired {
		log.Info("proxy requires authentication")

		token, err := d.cfg.Provider.Token(ctx, d.proxyHost)
		d.cfg.Metrics.Token(err)
		if err != nil {
			return nil, err
		}
		d.cfg.Metrics.Retry()

		req = append(req, preamble.AuthorizationLine(token))
		resp, err = s.resend(encodeRequest(req), resp, log)
		if err != nil {
			return nil, s.fail(err)
		}
		status, err = resp.Status()
		if err != nil {
			return nil, &StatusError{Line: string(resp.FirstLine())}
		}
		log.Debug("proxy response", "status", status.Code, "message", status.Message)
		authenticated = true
	}

	switch status.Code {
	case http.StatusOK:
		conn, err := s.detach()
		if err != nil {
			return nil, err
		}
		return &Tunnel{Conn: conn, Pending: resp.Rest, Authenticated: authenticated}, nil
	case http.StatusProxyAuthRequired:
		return nil, ErrProxyAuthFailed
	default:
		return nil, &StatusError{Code: status.Code, Message: status.Message}
	}
}

// DialContext establishes a tunnel to address and returns it as a net.Conn
// whose reads start with any pending payload.
func (d *NegotiateDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("negotiate dial %s %s: unsupported network", network, address)
	}

	t, err := d.Connect(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(t.Pending) == 0 {
		return t.Conn, nil
	}
	return &pendingConn{Conn: t.Conn, r: io.MultiReader(bytes.NewReader(t.Pending), t.Conn)}, nil
}

type pendingConn struct {
	net.Conn
	r io.Reader
}

func (c *pendingConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

// session is the proxy connection used during one handshake. Canceling ctx
// closes it.
type session struct {
	d    *NegotiateDialer
	ctx  context.Context
	conn net.Conn
	stop func() bool
}

func (s *session) dial() error {
	s.close()

	c, err := s.d.direct.DialContext(s.ctx, "tcp", s.d.proxyAddr)
	if err != nil {
		return err
	}
	s.conn = c
	s.stop = context.AfterFunc(s.ctx, func() { _ = c.Close() })

	if t := s.d.cfg.NegotiationTimeout; t > 0 {
		_ = c.SetDeadline(time.Now().Add(t))
	}
	return nil
}

func (s *session) write(req []byte) error {
	if _, err := s.conn.Write(req); err != nil {
		return fmt.Errorf("%w: write CONNECT: %w", ErrUpstreamConnect, err)
	}
	return nil
}

func (s *session) read() (*preamble.Preamble, error) {
	resp, err := preamble.Read(s.conn, s.d.cfg.MaxHeaderBytes)
	if err != nil {
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	return resp, nil
}

// resend sends the authenticated request after a 407 challenge.
func (s *session) resend(req []byte, challenge *preamble.Preamble, log *slog.Logger) (*preamble.Preamble, error) {
	if reusable(challenge) {
		var resp *preamble.Preamble
		err := s.discardBody(challenge)
		if err == nil {
			err = s.write(req)
		}
		if err == nil {
			resp, err = s.read()
			if err == nil || !peerClosed(err) {
				return resp, err
			}
		}
		if cerr := s.ctx.Err(); cerr != nil {
			return nil, cerr
		}
		log.Debug("proxy dropped connection after 407, reconnecting", "err", err)
	}

	if err := s.dial(); err != nil {
		return nil, err
	}
	if err := s.write(req); err != nil {
		return nil, err
	}
	return s.read()
}

// discardBody skips the body of a 407 so the next response header can be
// read from the same connection.
func (s *session) discardBody(p *preamble.Preamble) error {
	v, ok := p.Value("Content-Length")
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid Content-Length %q", v)
	}
	n -= int64(len(p.Rest))
	if n <= 0 {
		return nil
	}
	_, err = io.CopyN(io.Discard, s.conn, n)
	return err
}

// detach hands the connection over to the caller with deadlines cleared.
func (s *session) detach() (net.Conn, error) {
	c := s.conn
	s.conn = nil
	if !s.stop() {
		_ = c.Close()
		return nil, s.ctx.Err()
	}
	if s.d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

func (s *session) close() {
	if s.conn == nil {
		return
	}
	s.stop()
	_ = s.conn.Close()
	s.conn = nil
}

// fail prefers the context's error when cancellation caused err.
func (s *session) fail(err error) error {
	if cerr := s.ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	return err
}

// reusable reports whether the proxy left the connection open after resp.
func reusable(resp *preamble.Preamble) bool {
	if _, ok := resp.Value("Transfer-Encoding"); ok {
		return false
	}

	keepAlive := false
	for _, name := range []string{"Connection", "Proxy-Connection"} {
		v, ok := resp.Value(name)
		if !ok {
			continue
		}
		if hasToken(v, "close") {
			return false
		}
		if hasToken(v, "keep-alive") {
			keepAlive = true
		}
	}

	status, err := resp.Status()
	if err != nil {
		return false
	}
	return status.Proto != "HTTP/1.0" || keepAlive
}

func hasToken(v, token string) bool {
	for f := range strings.SplitSeq(v, ",") {
		if strings.EqualFold(strings.TrimSpace(f), token) {
			return true
		}
	}
	return false
}

func peerClosed(err error) bool {
	return errors.Is(err, preamble.ErrConnectionClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
