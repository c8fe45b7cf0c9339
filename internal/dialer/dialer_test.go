package dialer

import (
	"errors"
	"testing"

	"github.com/die-net/proxy-negotiate/internal/negotiate"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := Config{Provider: negotiate.Static("abcd")}

	tests := []struct {
		name     string
		upstream string
		wantAddr string
		wantErr  bool
	}{
		{
			name:     "host port",
			upstream: "proxy.example:8080",
			wantAddr: "proxy.example:8080",
		},
		{
			name:     "http default port",
			upstream: "http://proxy.example",
			wantAddr: "proxy.example:3128",
		},
		{
			name:     "scheme case-insensitive",
			upstream: "HTTp://proxy.example:80",
			wantAddr: "proxy.example:80",
		},
		{
			name:     "trailing slash",
			upstream: "http://proxy.example:80/",
			wantAddr: "proxy.example:80",
		},
		{
			name:     "ipv6",
			upstream: "[::1]:3128",
			wantAddr: "[::1]:3128",
		},
		{
			name:     "unsupported scheme",
			upstream: "socks5://proxy.example",
			wantErr:  true,
		},
		{
			name:     "missing host",
			upstream: "http://",
			wantErr:  true,
		},
		{
			name:     "non-empty path",
			upstream: "http://example.com/foo",
			wantErr:  true,
		},
		{
			name:     "missing port",
			upstream: "proxy.example",
			wantErr:  true,
		},
		{
			name:     "empty",
			upstream: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := New(cfg, tt.upstream)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.upstream)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.upstream, err)
			}
			if got := d.ProxyAddr(); got != tt.wantAddr {
				t.Fatalf("ProxyAddr() = %q, want %q", got, tt.wantAddr)
			}
		})
	}
}

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, "proxy.example:3128"); err == nil {
		t.Fatal("expected error without a provider")
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := error(&StatusError{Code: 502, Message: "Bad Gateway"})
	if got, want := err.Error(), "proxy returned 502 Bad Gateway"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.Code != 502 {
		t.Fatalf("errors.As failed: %#v", se)
	}

	err = &StatusError{Line: "garbage"}
	if got, want := err.Error(), `unexpected proxy response "garbage"`; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
