package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/die-net/proxy-negotiate/internal/negotiate"
	"github.com/die-net/proxy-negotiate/internal/preamble"
)

// Common holds the flags shared by proxy-negotiate and nc-negotiate.
type Common struct {
	ConfigPath         string
	Verbose            int
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	MaxHeaderBytes     int
	TCPKeepAlive       string

	Kerberos negotiate.Config

	// Proxy is the upstream proxy from the config file, used when none is
	// given as an argument.
	Proxy string
}

// AddFlags registers c's flags on fs.
func (c *Common) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigPath, "config", "c", "", "Path to a TOML config file; command-line flags override it")
	fs.CountVarP(&c.Verbose, "verbose", "v", "Add verbose output; repeat for debug output")
	fs.DurationVar(&c.DialTimeout, "dial-timeout", 10*time.Second, "Timeout for DNS lookup and TCP connect to the upstream proxy")
	fs.DurationVar(&c.NegotiationTimeout, "negotiation-timeout", 10*time.Second, "Timeout for reading headers and the CONNECT handshake; 0 disables")
	fs.IntVar(&c.MaxHeaderBytes, "max-header-bytes", preamble.DefaultMaxSize, "Largest accepted HTTP header block")
	fs.StringVar(&c.TCPKeepAlive, "tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

	fs.StringVar(&c.Kerberos.Krb5Conf, "krb5-conf", "", "Path to krb5.conf (default $KRB5_CONFIG or /etc/krb5.conf)")
	fs.StringVar(&c.Kerberos.CCache, "krb5-ccache", "", "Path to the Kerberos credential cache (default $KRB5CCNAME or /tmp/krb5cc_<uid>)")
	fs.StringVar(&c.Kerberos.Keytab, "keytab", "", "Authenticate from this keytab instead of a credential cache")
	fs.StringVar(&c.Kerberos.Principal, "principal", "", "Principal (user@REALM) to use with --keytab")
	fs.StringVar(&c.Kerberos.SPNHost, "spn-host", "", "Host name for the proxy's HTTP service principal, if it differs from the proxy address")
}

// Load merges the config file named by --config, if any. It must be called
// after fs has been parsed.
func (c *Common) Load(fs *pflag.FlagSet) error {
	if c.ConfigPath == "" {
		return nil
	}
	f, err := LoadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	return c.apply(fs, f)
}

// Provider returns the platform token provider for the Kerberos flags.
func (c *Common) Provider() (negotiate.Provider, error) {
	return negotiate.New(c.Kerberos)
}
