//go:build !windows

package negotiate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// DefaultKrb5Conf returns $KRB5_CONFIG or /etc/krb5.conf.
func DefaultKrb5Conf() string {
	if p := os.Getenv("KRB5_CONFIG"); p != "" {
		return p
	}
	return "/etc/krb5.conf"
}

// DefaultCCache returns the credential cache named by $KRB5CCNAME, or the
// MIT default /tmp/krb5cc_<uid>.
func DefaultCCache() string {
	if p := os.Getenv("KRB5CCNAME"); p != "" {
		// Only FILE: caches can be read by gokrb5.
		return strings.TrimPrefix(p, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

type kerberosProvider struct {
	cfg Config
}

// New returns the platform Provider, here a gokrb5 SPNEGO client.
//
// Credentials are loaded on every Token call so that a ticket renewed by
// kinit is picked up without restarting.
func New(cfg Config) (Provider, error) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = DefaultKrb5Conf()
	}
	if cfg.Keytab == "" && cfg.CCache == "" {
		cfg.CCache = DefaultCCache()
	}
	if cfg.Keytab != "" {
		if _, _, err := splitPrincipal(cfg.Principal); err != nil {
			return nil, err
		}
	}
	return &kerberosProvider{cfg: cfg}, nil
}

func (p *kerberosProvider) Token(ctx context.Context, host string) (string, error) {
	if p.cfg.SPNHost != "" {
		host = p.cfg.SPNHost
	}
	if err := ctx.Err(); err != nil {
		return "", authError(host, err)
	}

	cl, err := p.client()
	if err != nil {
		return "", authError(host, err)
	}
	defer cl.Destroy()

	s := spnego.SPNEGOClient(cl, ServicePrincipal(host))
	if err := s.AcquireCred(); err != nil {
		return "", authError(host, fmt.Errorf("acquire credential: %w", err))
	}
	st, err := s.InitSecContext()
	if err != nil {
		return "", authError(host, fmt.Errorf("init security context: %w", err))
	}
	b, err := st.Marshal()
	if err != nil {
		return "", authError(host, fmt.Errorf("marshal token: %w", err))
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func (p *kerberosProvider) client() (*client.Client, error) {
	krb5conf, err := config.Load(p.cfg.Krb5Conf)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.cfg.Krb5Conf, err)
	}

	if p.cfg.Keytab != "" {
		kt, err := keytab.Load(p.cfg.Keytab)
		if err != nil {
			return nil, fmt.Errorf("load keytab %s: %w", p.cfg.Keytab, err)
		}
		user, realm, err := splitPrincipal(p.cfg.Principal)
		if err != nil {
			return nil, err
		}
		return client.NewWithKeytab(user, realm, kt, krb5conf, client.DisablePAFXFAST(true)), nil
	}

	cc, err := credentials.LoadCCache(p.cfg.CCache)
	if err != nil {
		return nil, fmt.Errorf("load credential cache %s: %w", p.cfg.CCache, err)
	}
	cl, err := client.NewFromCCache(cc, krb5conf, client.DisablePAFXFAST(true))
	if err != nil {
		return nil, fmt.Errorf("credential cache %s: %w", p.cfg.CCache, err)
	}
	return cl, nil
}

func splitPrincipal(principal string) (user, realm string, err error) {
	user, realm, ok := strings.Cut(principal, "@")
	if !ok || user == "" || realm == "" {
		return "", "", errors.New("keytab requires a principal of the form user@REALM")
	}
	return user, realm, nil
}
