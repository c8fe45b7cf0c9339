// Package socks5 implements the server side of the SOCKS5 handshake used by
// the SOCKS5 front-end: no-auth negotiation, CONNECT request parsing and
// replies.
//
// It is a thin layer over the protocol types in github.com/txthinking/socks5.
// Only CONNECT is supported; tunnels are opened through the upstream proxy,
// so BIND and UDP ASSOCIATE have nothing to map to.
package socks5
