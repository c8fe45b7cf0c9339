// Package netcat relays standard input and output through an authenticated
// CONNECT tunnel, for use as an ssh ProxyCommand and similar.
package netcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
	"github.com/die-net/proxy-negotiate/internal/proxy"
)

// DefaultDrainTimeout is how long Run waits for the input relay once the
// tunnel has closed.
const DefaultDrainTimeout = 100 * time.Millisecond

// Connector opens a tunnel to target.
type Connector interface {
	Connect(ctx context.Context, target string) (*dialer.Tunnel, error)
}

type Config struct {
	Dialer Connector
	Logger *slog.Logger

	// DrainTimeout bounds the wait for a read on stdin that closing it did
	// not interrupt. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// Run opens a tunnel to target and relays stdin to it and its output to
// stdout until either side finishes. Both streams are closed on return.
func Run(ctx context.Context, cfg Config, target string, stdin io.ReadCloser, stdout io.WriteCloser) error {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("target", target)

	tun, err := cfg.Dialer.Connect(ctx, target)
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return err
	}
	log.Info("Proxy connection established", "authenticated", tun.Authenticated)

	if len(tun.Pending) > 0 {
		log.Debug("forwarding bytes received with the proxy response", "bytes", len(tun.Pending))
		if _, err := tun.Write(tun.Pending); err != nil {
			_ = tun.Close()
			_ = stdin.Close()
			_ = stdout.Close()
			return fmt.Errorf("forward pending bytes: %w", err)
		}
	}

	p := proxy.NewPair(&stdio{in: stdin, out: stdout}, tun)
	p.Start(ctx)

	type result struct {
		stats proxy.Stats
		err   error
	}
	resc := make(chan result, 1)
	go func() {
		stats, err := p.Wait()
		resc <- result{stats, err}
	}()

	<-p.Done()

	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	timer := time.NewTimer(drain)
	defer timer.Stop()

	select {
	case r := <-resc:
		log.Debug("tunnel closed", "up", r.stats.Up, "down", r.stats.Down)
		return r.err
	case <-timer.C:
		// The terminal may keep the stdin read blocked after Close.
		log.Debug("tunnel closed with stdin read pending")
		return nil
	}
}

// Report formats err for the operator.
func Report(err error) string {
	var statusErr *dialer.StatusError
	switch {
	case errors.Is(err, dialer.ErrProxyAuthFailed), errors.Is(err, negotiate.ErrAuthentication):
		return "Proxy authentication failed"
	case errors.As(err, &statusErr):
		if statusErr.Code == 0 {
			return fmt.Sprintf("Unexpected proxy response: %s", statusErr.Line)
		}
		return fmt.Sprintf("Proxy returned %d %s", statusErr.Code, statusErr.Message)
	default:
		return err.Error()
	}
}

// stdio joins separate input and output streams into one connection.
type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdio) Read(b []byte) (int, error) { return s.in.Read(b) }
func (s *stdio) Write(b []byte) (int, error) { return s.out.Write(b) }

func (s *stdio) Close() error {
	return errors.Join(s.in.Close(), s.out.Close())
}
