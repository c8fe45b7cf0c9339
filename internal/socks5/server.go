package socks5

import (
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

var (
	// ErrNoAcceptableMethod means the client did not offer no-auth.
	ErrNoAcceptableMethod = errors.New("socks5: client does not support no-auth")

	// ErrCommandNotSupported means the client asked for something other than
	// CONNECT.
	ErrCommandNotSupported = errors.New("socks5: command not supported")
)

// Request is a parsed CONNECT request.
type Request struct {
	// Target is the requested destination as host:port.
	Target string
	// Atyp is the address type the client used, echoed in replies.
	Atyp byte
}

// Handshake negotiates no-auth with the client and reads its request.
//
// Unsupported methods and commands are answered on conn before an error is
// returned. On success the caller must send exactly one reply with
// WriteReply or WriteSuccessReply.
func Handshake(conn net.Conn) (*Request, error) {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("socks5: negotiation request: %w", err)
	}
	if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF means no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
		return nil, ErrNoAcceptableMethod
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
		return nil, fmt.Errorf("socks5: negotiation reply: %w", err)
	}

	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("socks5: request: %w", err)
	}
	if req.Cmd != txsocks5.CmdConnect {
		WriteReply(conn, txsocks5.RepCommandNotSupported, req.Atyp)
		return nil, fmt.Errorf("%w: %d", ErrCommandNotSupported, req.Cmd)
	}

	return &Request{Target: req.Address(), Atyp: req.Atyp}, nil
}
