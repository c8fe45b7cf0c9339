package preamble

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadSplitsAtFirstTerminator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantHeader string
		wantRest   string
	}{
		{
			name:       "no body",
			input:      "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
			wantHeader: "GET / HTTP/1.1\r\nHost: x",
		},
		{
			name:       "body in same buffer",
			input:      "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello",
			wantHeader: "POST / HTTP/1.1\r\nContent-Length: 5",
			wantRest:   "hello",
		},
		{
			name:       "second terminator belongs to rest",
			input:      "HTTP/1.1 200 Connection established\r\n\r\nSSH-2.0\r\n\r\n",
			wantHeader: "HTTP/1.1 200 Connection established",
			wantRest:   "SSH-2.0\r\n\r\n",
		},
		{
			name:       "empty header",
			input:      "\r\n\r\nx",
			wantHeader: "",
			wantRest:   "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Read(strings.NewReader(tt.input), 0)
			if err != nil {
				t.Fatal(err)
			}
			if string(p.Header) != tt.wantHeader {
				t.Fatalf("header %q want %q", p.Header, tt.wantHeader)
			}
			if string(p.Rest) != tt.wantRest {
				t.Fatalf("rest %q want %q", p.Rest, tt.wantRest)
			}
			if got := string(p.Bytes()); got != tt.input {
				t.Fatalf("reassembled %q want %q", got, tt.input)
			}
		})
	}
}

func TestReadTerminatorAcrossChunks(t *testing.T) {
	t.Parallel()

	// Place the terminator so it straddles the first ChunkSize boundary.
	header := "GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", ChunkSize-26)
	input := header + "\r\n\r\nbody"
	if i := strings.Index(input, "\r\n\r\n"); i >= ChunkSize || i+4 <= ChunkSize {
		t.Fatalf("terminator at %d does not straddle chunk boundary", i)
	}

	p, err := Read(strings.NewReader(input), 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Header) != header {
		t.Fatalf("header length %d want %d", len(p.Header), len(header))
	}
	if string(p.Rest) != "body" {
		t.Fatalf("rest %q", p.Rest)
	}
}

func TestReadOneByteAtATime(t *testing.T) {
	t.Parallel()

	input := "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"
	p, err := Read(iotest.OneByteReader(strings.NewReader(input)), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Bytes(), []byte(input)) {
		t.Fatalf("got %q", p.Bytes())
	}
	if len(p.Rest) != 0 {
		t.Fatalf("unexpected rest %q", p.Rest)
	}
}

func TestReadConnectionClosed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "GET / HTTP/1.1\r\nHost: x\r\n"} {
		_, err := Read(strings.NewReader(input), 0)
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("input %q: got %v want ErrConnectionClosed", input, err)
		}
	}
}

func TestReadTooLarge(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("a", 4*ChunkSize)
	_, err := Read(strings.NewReader(input), 2*ChunkSize)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v want ErrTooLarge", err)
	}
}

func TestReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("GET / HTTP/1.1\r\n"), iotest.ErrReader(boom))
	_, err := Read(r, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}
	if errors.Is(err, ErrConnectionClosed) {
		t.Fatal("read error reported as connection closed")
	}
}

func TestValue(t *testing.T) {
	t.Parallel()

	p := &Preamble{Header: []byte("HTTP/1.1 407 Proxy Authentication Required\r\ncontent-length:  12 \r\nProxy-Connection: close")}

	if v, ok := p.Value("Content-Length"); !ok || v != "12" {
		t.Fatalf("Content-Length = %q, %v", v, ok)
	}
	if v, ok := p.Value("proxy-connection"); !ok || v != "close" {
		t.Fatalf("Proxy-Connection = %q, %v", v, ok)
	}
	if _, ok := p.Value("Connection"); ok {
		t.Fatal("unexpected Connection header")
	}
}
