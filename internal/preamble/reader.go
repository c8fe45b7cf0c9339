package preamble

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// ChunkSize is the size of each read while looking for the end of the
	// header block.
	ChunkSize = 1024

	// DefaultMaxSize bounds the header block when Read is given no limit.
	DefaultMaxSize = 64 << 10
)

var (
	// ErrConnectionClosed means the peer closed the connection before a
	// complete header block was received.
	ErrConnectionClosed = errors.New("connection closed before end of header")

	// ErrTooLarge means no header terminator was found within the size limit.
	ErrTooLarge = errors.New("header block too large")
)

var (
	crlf       = []byte("\r\n")
	terminator = []byte("\r\n\r\n")
)

// Preamble is an HTTP header block plus any bytes that were read past its
// terminator in the same buffer.
type Preamble struct {
	// Header holds the bytes before the first "\r\n\r\n".
	Header []byte
	// Rest holds the bytes after the terminator. They belong to the message
	// body or tunnel payload and must be forwarded, not dropped.
	Rest []byte
}

// Read accumulates ChunkSize reads from r until "\r\n\r\n" appears and splits
// the result at its first occurrence.
//
// If r reaches EOF first, Read returns ErrConnectionClosed. If the buffered
// bytes exceed maxSize without a terminator, Read returns ErrTooLarge. A
// maxSize <= 0 selects DefaultMaxSize.
func Read(r io.Reader, maxSize int) (*Preamble, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	buf := make([]byte, 0, ChunkSize)
	chunk := make([]byte, ChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// The terminator may straddle two reads.
			from := max(len(buf)-len(terminator)+1, 0)
			buf = append(buf, chunk[:n]...)
			if i := bytes.Index(buf[from:], terminator); i >= 0 {
				i += from
				return &Preamble{
					Header: buf[:i:i],
					Rest:   buf[i+len(terminator):],
				}, nil
			}
			if len(buf) > maxSize {
				return nil, fmt.Errorf("%w: no terminator in %d bytes", ErrTooLarge, len(buf))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrConnectionClosed
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
}

// Bytes reassembles the exact byte stream that was read.
func (p *Preamble) Bytes() []byte {
	out := make([]byte, 0, len(p.Header)+len(terminator)+len(p.Rest))
	out = append(out, p.Header...)
	out = append(out, terminator...)
	return append(out, p.Rest...)
}

// Lines splits the header block on "\r\n", preserving order.
func (p *Preamble) Lines() [][]byte {
	return bytes.Split(p.Header, crlf)
}

// FirstLine returns the request or status line.
func (p *Preamble) FirstLine() []byte {
	if i := bytes.Index(p.Header, crlf); i >= 0 {
		return p.Header[:i]
	}
	return p.Header
}

// Value returns the trimmed value of the first header field called name,
// compared case-insensitively. The request or status line is skipped.
func (p *Preamble) Value(name string) (string, bool) {
	lines := p.Lines()
	for _, line := range lines[1:] {
		k, v, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		if bytes.EqualFold(bytes.TrimSpace(k), []byte(name)) {
			return string(bytes.TrimSpace(v)), true
		}
	}
	return "", false
}
