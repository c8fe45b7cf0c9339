package testutil

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/die-net/proxy-negotiate/internal/preamble"
)

// StartAcceptServer accepts up to n connections, one after another, and
// passes each to handler with its index. The returned func closes the
// listener and waits for the handlers.
func StartAcceptServer(t *testing.T, ctx context.Context, n int, handler func(int, net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range n {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Go(func() {
				defer c.Close()
				handler(i, c)
			})
		}
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}

	return ln, wait
}

func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	return StartAcceptServer(t, ctx, 1, func(_ int, c net.Conn) { handler(c) })
}

// ReadHeader reads one header block from c. It reports failures with
// t.Errorf, since it is usually called from a server goroutine.
func ReadHeader(t *testing.T, c net.Conn) *preamble.Preamble {
	t.Helper()

	p, err := preamble.Read(c, preamble.DefaultMaxSize)
	if err != nil {
		t.Errorf("read header: %v", err)
		return nil
	}
	return p
}
