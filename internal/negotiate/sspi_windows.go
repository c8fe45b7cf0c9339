//go:build windows

package negotiate

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/alexbrainman/sspi/negotiate"
)

type sspiProvider struct {
	cfg Config
}

// New returns the platform Provider, here SSPI Negotiate with the logged-on
// user's credentials. Kerberos file options in cfg are ignored.
func New(cfg Config) (Provider, error) {
	return &sspiProvider{cfg: cfg}, nil
}

func (p *sspiProvider) Token(ctx context.Context, host string) (string, error) {
	if p.cfg.SPNHost != "" {
		host = p.cfg.SPNHost
	}
	if err := ctx.Err(); err != nil {
		return "", authError(host, err)
	}

	cred, err := negotiate.AcquireCurrentUserCredentials()
	if err != nil {
		return "", authError(host, fmt.Errorf("acquire current user credentials: %w", err))
	}
	defer cred.Release()

	secctx, token, err := negotiate.NewClientContext(cred, ServicePrincipal(host))
	if err != nil {
		return "", authError(host, fmt.Errorf("new client context: %w", err))
	}
	defer secctx.Release()

	return base64.StdEncoding.EncodeToString(token), nil
}
