// Package dialer provides the outbound side of proxy-negotiate.
//
// The direct dialer reaches the upstream proxy over TCP. NegotiateDialer
// opens CONNECT tunnels through that proxy, answering a 407 challenge with a
// Negotiate token and exactly one resend.
package dialer
