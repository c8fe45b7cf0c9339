// Package proxy implements the listener side of proxy-negotiate.
//
// Server is the authenticating HTTP proxy: it reads each client's request
// header, injects a Negotiate Proxy-Authorization line and relays the
// connection to the upstream proxy. SOCKS5Server accepts SOCKS5 CONNECT
// requests and opens authenticated CONNECT tunnels for them. The package also
// holds the shared connection plumbing: the byte relay, relay pairs and
// keepalive listeners.
package proxy
