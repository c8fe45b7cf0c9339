// Package config holds the command-line plumbing shared by proxy-negotiate
// and nc-negotiate: proxy address parsing and discovery, TCP keepalive
// settings, logger construction and the flags both commands share.
package config
