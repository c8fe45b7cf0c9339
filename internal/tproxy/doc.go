// Package tproxy accepts firewall-redirected TCP connections and carries each
// one through an authenticated CONNECT tunnel to its original destination.
//
// On Linux the listener sets IP_TRANSPARENT and the destination is read with
// SO_ORIGINAL_DST, falling back to the local address for TPROXY rules. On
// FreeBSD (IP_BINDANY) and OpenBSD (SO_BINDANY) the firewall preserves the
// destination as the local address. Other platforms return ErrUnsupported.
package tproxy
