package negotiate

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthentication wraps every failure to produce a token.
var ErrAuthentication = errors.New("negotiate authentication failed")

// Provider returns a base64 SPNEGO token for the HTTP service on host.
//
// A token is valid for a single authentication attempt; callers fetch a new
// one for every connection.
type Provider interface {
	Token(ctx context.Context, host string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, host string) (string, error)

// Token calls f.
func (f ProviderFunc) Token(ctx context.Context, host string) (string, error) {
	return f(ctx, host)
}

// Static returns a Provider that always yields token.
func Static(token string) Provider {
	return ProviderFunc(func(context.Context, string) (string, error) {
		return token, nil
	})
}

// Config selects credentials for the platform provider.
type Config struct {
	// Krb5Conf is the path of krb5.conf. Ignored on Windows.
	Krb5Conf string
	// CCache is the path of the Kerberos credential cache. Ignored on
	// Windows and when Keytab is set.
	CCache string
	// Keytab and Principal ("user@REALM") authenticate without a credential
	// cache. Ignored on Windows.
	Keytab    string
	Principal string
	// SPNHost, if set, replaces the host passed to Token when building the
	// service principal name.
	SPNHost string
}

// ServicePrincipal returns the SPN used for host.
func ServicePrincipal(host string) string {
	return "HTTP/" + host
}

func authError(host string, err error) error {
	return fmt.Errorf("%w for %s: %w", ErrAuthentication, ServicePrincipal(host), err)
}
