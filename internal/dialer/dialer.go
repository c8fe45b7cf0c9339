package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/die-net/proxy-negotiate/internal/config"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses upstream and returns a NegotiateDialer for it.
//
// Accepted forms are "host:port" and "http://host[:port]"; a missing URL
// port defaults to 3128.
func New(cfg Config, upstream string) (*NegotiateDialer, error) {
	if strings.Contains(upstream, "://") {
		u, err := url.Parse(upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid url: %w", err)
		}
		if s := strings.ToLower(u.Scheme); s != "http" {
			return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
		}
		if u.Path != "" && u.Path != "/" {
			return nil, errors.New("invalid URL: path should be empty")
		}
	}

	addr, err := config.ParseHostPort(upstream)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == nil {
		return nil, errors.New("negotiate dialer: missing token provider")
	}

	return NewNegotiateDialer(cfg, addr), nil
}
