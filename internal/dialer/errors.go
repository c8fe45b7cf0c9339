package dialer

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamConnect means the upstream proxy could not be reached or
	// written to.
	ErrUpstreamConnect = errors.New("cannot connect to upstream proxy")

	// ErrProxyAuthFailed means the proxy still answered 407 after the
	// request was resent with a Negotiate token.
	ErrProxyAuthFailed = errors.New("proxy authentication failed")
)

// StatusError is a CONNECT response other than 200 or 407.
type StatusError struct {
	Code    int
	Message string
	// Line is the raw status line, set when it could not be parsed.
	Line string
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("unexpected proxy response %q", e.Line)
	}
	return fmt.Sprintf("proxy returned %d %s", e.Code, e.Message)
}
