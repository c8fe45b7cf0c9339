package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/die-net/proxy-negotiate/internal/testutil"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestRunUsage(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	code := run(t.Context(), nil, io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "TARGET:PORT") {
		t.Fatalf("usage not printed: %q", stderr.String())
	}
}

// Not parallel: it clears the proxy environment.
func TestRunNoProxy(t *testing.T) {
	for _, name := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		t.Setenv(name, "")
	}

	var stderr bytes.Buffer
	code := run(t.Context(), []string{"internal.example.com:22"}, io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "HTTPS_PROXY") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReportsProxyStatus(t *testing.T) {
	t.Parallel()

	ln, wait := testutil.StartSingleAcceptServer(t, t.Context(), func(c net.Conn) {
		if testutil.ReadHeader(t, c) != nil {
			_, _ = c.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		}
	})
	defer wait()

	var stderr bytes.Buffer
	code := run(t.Context(), []string{"--tcp-keepalive=off", "internal.example.com:443", ln.Addr().String()},
		io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Proxy returned 502 Bad Gateway") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	ln, wait := testutil.StartSingleAcceptServer(t, t.Context(), func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	defer wait()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var stderr bytes.Buffer
	code := run(ctx, []string{"internal.example.com:443", ln.Addr().String()},
		io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Closing down") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
