//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/proxy-negotiate/internal/proxy"
)

// Supported reports whether transparent listening works on this platform.
const Supported = true

// Listen listens on addr with IP_TRANSPARENT set. iptables or nftables
// REDIRECT/TPROXY rules are still needed to steer traffic to it.
func Listen(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
				return
			}
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
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

// OriginalDst returns the destination the client originally dialed.
func OriginalDst(c net.Conn) (*net.TCPAddr, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("tproxy: %T is not a TCP connection", c)
	}
	local, _ := tc.LocalAddr().(*net.TCPAddr)

	rc, err := tc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("tproxy: %w", err)
	}

	var (
		addr    *net.TCPAddr
		sockErr error
	)
	err = rc.Control(func(fd uintptr) {
		if local != nil && local.IP.To4() == nil {
			// IP6T_SO_ORIGINAL_DST fills a sockaddr_in6, which is the
			// leading field of IPv6MTUInfo.
			info, err := unix.GetsockoptIPv6MTUInfo(int(fd), unix.SOL_IPV6, unix.SO_ORIGINAL_DST)
			if err != nil {
				sockErr = err
				return
			}
			// Port holds network byte order in host memory.
			var port [2]byte
			binary.NativeEndian.PutUint16(port[:], info.Addr.Port)
			addr = &net.TCPAddr{IP: net.IP(info.Addr.Addr[:]), Port: int(binary.BigEndian.Uint16(port[:]))}
			return
		}

		// SO_ORIGINAL_DST fills a sockaddr_in, which fits in IPv6Mreq.
		mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			sockErr = err
			return
		}
		raw := mreq.Multiaddr
		addr = &net.TCPAddr{
			IP:   net.IPv4(raw[4], raw[5], raw[6], raw[7]),
			Port: int(binary.BigEndian.Uint16(raw[2:4])),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("tproxy: %w", err)
	}

	if sockErr != nil {
		// TPROXY rules keep the original destination as the local address.
		if local != nil {
			return localDst(c)
		}
		return nil, fmt.Errorf("tproxy: SO_ORIGINAL_DST: %w", sockErr)
	}
	return addr, nil
}
