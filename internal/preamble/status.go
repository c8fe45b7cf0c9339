package preamble

import (
	"bytes"
	"fmt"
	"strconv"
)

// StatusLine is the first line of an HTTP response.
type StatusLine struct {
	Proto   string
	Code    int
	Message string
}

// ParseStatusLine splits "HTTP/<ver> <code> <message>". The message may be
// empty or contain spaces.
func ParseStatusLine(line []byte) (StatusLine, error) {
	proto, rest, ok := bytes.Cut(line, []byte(" "))
	if !ok || !bytes.HasPrefix(proto, []byte("HTTP/")) {
		return StatusLine{}, fmt.Errorf("malformed status line %q", line)
	}

	code, msg, _ := bytes.Cut(rest, []byte(" "))
	if len(code) != 3 {
		return StatusLine{}, fmt.Errorf("malformed status code in %q", line)
	}
	n, err := strconv.Atoi(string(code))
	if err != nil || n < 100 {
		return StatusLine{}, fmt.Errorf("malformed status code in %q", line)
	}

	return StatusLine{Proto: string(proto), Code: n, Message: string(msg)}, nil
}

// Status parses the preamble's first line as a response status line.
func (p *Preamble) Status() (StatusLine, error) {
	return ParseStatusLine(p.FirstLine())
}
