//go:build freebsd

package tproxy

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/proxy-negotiate/internal/proxy"
)

// Supported reports whether transparent listening works on this platform.
const Supported = true

// Listen listens on addr with IP_BINDANY (IPV6_BINDANY for tcp6) so IPFW fwd
// and PF rdr-to connections can be accepted. It needs root or
// PRIV_NETINET_BINDANY.
func Listen(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_BINDANY, 1)
				return
			}
			ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BINDANY, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &proxy.KeepAliveListener{Listener: ln, KeepAliveConfig: ka}, nil
}

// OriginalDst returns the destination the client originally dialed, which
// the firewall preserves as the local address.
func OriginalDst(c net.Conn) (*net.TCPAddr, error) {
	return localDst(c)
}
