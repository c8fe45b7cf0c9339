package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DefaultProxyPort is applied when a proxy URL has no port.
const DefaultProxyPort = "3128"

// ErrNoProxy means no upstream proxy was given and none could be found in
// the environment.
var ErrNoProxy = errors.New("no proxy address given and neither HTTPS_PROXY nor HTTP_PROXY is set")

// ProxyEnv lists the environment variables consulted by ProxyFromEnv, in order.
var ProxyEnv = []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"}

// ParseHostPort validates a "host:port" address, or a URL such as
// "http://proxy.example.com:3128", and returns it as "host:port".
func ParseHostPort(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty address")
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", s, err)
		}
		if u.Hostname() == "" {
			return "", fmt.Errorf("invalid url %q: missing host", s)
		}
		port := u.Port()
		if port == "" {
			port = DefaultProxyPort
		}
		return net.JoinHostPort(u.Hostname(), port), nil
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	if host == "" {
		return "", fmt.Errorf("invalid address %q: missing host", s)
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid address %q: bad port", s)
	}
	return net.JoinHostPort(host, port), nil
}

// ProxyFromEnv returns the proxy "host:port" named by the first set variable
// in ProxyEnv, or ErrNoProxy.
func ProxyFromEnv() (string, error) {
	for _, name := range ProxyEnv {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		addr, err := ParseHostPort(v)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return addr, nil
	}
	return "", ErrNoProxy
}
