package testutil

import (
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// SOCKS5Connect runs a no-auth SOCKS5 CONNECT for address over conn and
// returns the server's reply code.
func SOCKS5Connect(conn net.Conn, address string) (byte, error) {
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(conn); err != nil {
		return 0, fmt.Errorf("write negotiation: %w", err)
	}
	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return 0, fmt.Errorf("read negotiation: %w", err)
	}
	if neg.Method != txsocks5.MethodNone {
		return 0, fmt.Errorf("unexpected negotiation method: %d", neg.Method)
	}

	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return 0, fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", err)
	}
	return rep.Rep, nil
}
