package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
	"github.com/die-net/proxy-negotiate/internal/testutil"
)

func TestHandshake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		want    string
	}{
		{name: "ipv4", address: "127.0.0.1:80", want: "127.0.0.1:80"},
		{name: "ipv6", address: "[::1]:443", want: "[::1]:443"},
		{name: "domain", address: "internal.example.com:22", want: "internal.example.com:22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				req, err := Handshake(serverConn)
				if err != nil {
					return err
				}
				if req.Target != tt.want {
					return fmt.Errorf("target = %q, want %q", req.Target, tt.want)
				}
				return WriteSuccessReply(serverConn, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
			})

			rep, err := testutil.SOCKS5Connect(clientConn, tt.address)
			if err != nil {
				t.Fatal(err)
			}
			if rep != txsocks5.RepSuccess {
				t.Fatalf("reply = %d, want success", rep)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestHandshakeRejectsAuthOnlyClient(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := Handshake(serverConn)
		errc <- err
	}()

	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodUsernamePassword}).WriteTo(clientConn); err != nil {
		t.Fatal(err)
	}
	neg, err := txsocks5.NewNegotiationReplyFrom(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	if neg.Method != 0xff {
		t.Fatalf("method = %#x, want 0xff", neg.Method)
	}
	if err := <-errc; !errors.Is(err, ErrNoAcceptableMethod) {
		t.Fatalf("expected ErrNoAcceptableMethod, got %v", err)
	}
}

func TestReplyFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want byte
	}{
		{"auth rejected", dialer.ErrProxyAuthFailed, RepNotAllowed},
		{"no token", fmt.Errorf("x: %w", negotiate.ErrAuthentication), RepNotAllowed},
		{"forbidden", &dialer.StatusError{Code: 403}, RepNotAllowed},
		{"bad gateway", &dialer.StatusError{Code: 502}, RepHostUnreachable},
		{"gateway timeout", &dialer.StatusError{Code: 504}, RepTTLExpired},
		{"other status", &dialer.StatusError{Code: 500}, RepGeneralFailure},
		{"unreachable proxy", fmt.Errorf("%w: refused", dialer.ErrUpstreamConnect), RepNetworkUnreachable},
		{"timeout", context.DeadlineExceeded, RepTTLExpired},
		{"other", errors.New("boom"), RepGeneralFailure},
	}

	for _, tt := range tests {
		if got := ReplyFor(tt.err); got != tt.want {
			t.Errorf("%s: ReplyFor() = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}
