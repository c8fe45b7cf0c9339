//go:build openbsd

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

// Listen listens on addr with the socket-level SO_BINDANY option so PF rdr-to
// connections can be accepted. Return traffic needs a divert-reply rule.
func Listen(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BINDANY, 1)
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

// OriginalDst returns the destination the client originally dialed, which PF
// preserves as the local address.
func OriginalDst(c net.Conn) (*net.TCPAddr, error) {
	return localDst(c)
}
