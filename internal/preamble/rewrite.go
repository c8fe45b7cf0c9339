package preamble

import (
	"bytes"
)

// AuthorizationPrefix starts the header line that InjectAuthorization replaces.
const AuthorizationPrefix = "Proxy-Authorization:"

// AuthorizationLine formats the Negotiate credential header line for token.
func AuthorizationLine(token string) []byte {
	return []byte(AuthorizationPrefix + " Negotiate " + token)
}

// InjectAuthorization returns header with a Negotiate Proxy-Authorization line
// for token.
//
// The first line starting with "Proxy-Authorization:" is replaced in place;
// if there is none, the new line is appended. All other lines keep their
// bytes and order. The result has no trailing terminator.
func InjectAuthorization(header []byte, token string) []byte {
	lines := bytes.Split(header, crlf)
	auth := AuthorizationLine(token)

	replaced := false
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte(AuthorizationPrefix)) {
			lines[i] = auth
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, auth)
	}

	return bytes.Join(lines, crlf)
}

// WithAuthorization returns the rewritten header block followed by the
// terminator and the unmodified remainder bytes, ready to send upstream.
func (p *Preamble) WithAuthorization(token string) []byte {
	header := InjectAuthorization(p.Header, token)

	out := make([]byte, 0, len(header)+len(terminator)+len(p.Rest))
	out = append(out, header...)
	out = append(out, terminator...)
	return append(out, p.Rest...)
}
