package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ChunkSize is the largest single read performed by Relay.
const ChunkSize = 1024

// Relay copies src to dst one read of up to ChunkSize bytes at a time, writing
// each chunk verbatim. It returns a nil error when src reports EOF and the
// read or write error otherwise. src is closed on every return path.
func Relay(src io.ReadCloser, dst io.Writer) (int64, error) {
	defer src.Close()
	return relay(src, dst)
}

// relay is Relay without closing src; Pair owns its connections.
func relay(src io.Reader, dst io.Writer) (int64, error) {
	bp := relayBuffers.get()
	defer relayBuffers.put(bp)
	buf := *bp

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read: %w", rerr)
		}
	}
}

// Stats counts the bytes a Pair copied in each direction.
type Stats struct {
	// Up is left to right, Down is right to left.
	Up, Down int64
}

// Pair relays between two connections in both directions.
//
// The two relays share one close-once group: when either finishes, for any
// reason, both connections are closed so the other relay sees EOF or an error
// and exits too. Errors caused by that teardown are not reported as faults.
type Pair struct {
	left, right io.ReadWriteCloser

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	g     *errgroup.Group
	stats Stats
}

// NewPair returns an idle Pair over left and right. It takes ownership of
// both connections.
func NewPair(left, right io.ReadWriteCloser) *Pair {
	return &Pair{left: left, right: right, done: make(chan struct{})}
}

// Start launches both relays. Canceling ctx closes the pair.
func (p *Pair) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.g = g

	g.Go(func() error {
		n, err := relay(p.left, p.right)
		p.stats.Up = n
		p.Close()
		return p.fault("up", err)
	})

	g.Go(func() error {
		n, err := relay(p.right, p.left)
		p.stats.Down = n
		p.Close()
		return p.fault("down", err)
	})

	// Unblock both relays if ctx is canceled first.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			p.Close()
		case <-p.done:
		}
		return nil
	})
}

// Done is closed as soon as either relay has finished or the pair was closed.
func (p *Pair) Done() <-chan struct{} {
	return p.done
}

// Close closes both connections exactly once. It is safe to call
// concurrently and more than once; later calls return the first result.
func (p *Pair) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = errors.Join(p.left.Close(), p.right.Close())
		close(p.done)
	})
	return p.closeErr
}

// Wait blocks until both relays have returned and reports the bytes copied and
// the first fault, if any.
func (p *Pair) Wait() (Stats, error) {
	if p.g == nil {
		return Stats{}, nil
	}
	err := p.g.Wait()
	return p.stats, err
}

// fault reports err unless it is a clean EOF or the result of the pair being
// torn down. A relay only sees a closed connection when someone else closed it.
func (p *Pair) fault(dir string, err error) error {
	if err == nil || isClosedErr(err) {
		return nil
	}
	return fmt.Errorf("relay %s: %w", dir, err)
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

// CopyBidirectional relays between left and right until both directions have
// finished, closing both connections.
func CopyBidirectional(ctx context.Context, left, right io.ReadWriteCloser) (Stats, error) {
	p := NewPair(left, right)
	p.Start(ctx)
	return p.Wait()
}
