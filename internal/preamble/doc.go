// Package preamble reads and rewrites raw HTTP header blocks.
//
// A preamble is everything up to the first blank line of an HTTP request or
// response. The package works on bytes rather than net/http types so that a
// rewritten header block is byte-for-byte identical to what the client sent,
// apart from the injected Proxy-Authorization line.
package preamble
