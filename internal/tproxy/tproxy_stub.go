//go:build !linux && !freebsd && !openbsd

package tproxy

import (
	"context"
	"net"
)

// Supported reports whether transparent listening works on this platform.
const Supported = false

func Listen(context.Context, string, net.KeepAliveConfig) (net.Listener, error) {
	return nil, ErrUnsupported
}

func OriginalDst(net.Conn) (*net.TCPAddr, error) {
	return nil, ErrUnsupported
}
