package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/negotiate"
)

// Reply codes from RFC 1928 section 6.
const (
	RepGeneralFailure     byte = 0x01
	RepNotAllowed         byte = 0x02
	RepNetworkUnreachable byte = 0x03
	RepHostUnreachable    byte = 0x04
	RepConnectionRefused  byte = txsocks5.RepConnectionRefused
	RepTTLExpired         byte = 0x06
)

// ReplyFor maps a tunnel failure to the closest SOCKS5 reply code.
func ReplyFor(err error) byte {
	var statusErr *dialer.StatusError
	switch {
	case errors.Is(err, dialer.ErrProxyAuthFailed), errors.Is(err, negotiate.ErrAuthentication):
		return RepNotAllowed
	case errors.Is(err, context.DeadlineExceeded):
		return RepTTLExpired
	case errors.As(err, &statusErr):
		switch statusErr.Code {
		case http.StatusForbidden:
			return RepNotAllowed
		case http.StatusBadGateway, http.StatusNotFound:
			return RepHostUnreachable
		case http.StatusServiceUnavailable:
			return RepConnectionRefused
		case http.StatusGatewayTimeout:
			return RepTTLExpired
		}
		return RepGeneralFailure
	case errors.Is(err, dialer.ErrUpstreamConnect):
		return RepNetworkUnreachable
	default:
		return RepGeneralFailure
	}
}

// WriteReply writes a failure reply with a zero bound address of the given
// address type.
func WriteReply(conn net.Conn, rep, atyp byte) {
	if atyp == txsocks5.ATYPIPv6 {
		_, _ = txsocks5.NewReply(rep, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00}).WriteTo(conn)
		return
	}
	_, _ = txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(conn)
}

// WriteSuccessReply writes a success reply using localAddr as the bound
// address.
func WriteSuccessReply(conn net.Conn, localAddr net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(localAddr.String())
	if err != nil {
		return fmt.Errorf("socks5: parse local address %q: %w", localAddr.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: success reply: %w", err)
	}
	return nil
}
