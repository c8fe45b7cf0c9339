package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// File is the optional TOML configuration file. Every key mirrors a flag of
// the same name; flags given on the command line win.
//
//	proxy = "proxy.example.com:3128"
//	verbose = 1
//	dial_timeout = "5s"
//
//	[kerberos]
//	keytab = "/etc/proxy-negotiate.keytab"
//	principal = "svc-proxy@EXAMPLE.COM"
type File struct {
	Proxy              string       `toml:"proxy"`
	Verbose            int          `toml:"verbose"`
	DialTimeout        string       `toml:"dial_timeout"`
	NegotiationTimeout string       `toml:"negotiation_timeout"`
	MaxHeaderBytes     int          `toml:"max_header_bytes"`
	TCPKeepAlive       string       `toml:"tcp_keepalive"`
	Kerberos           KerberosFile `toml:"kerberos"`
}

type KerberosFile struct {
	Krb5Conf  string `toml:"krb5_conf"`
	CCache    string `toml:"ccache"`
	Keytab    string `toml:"keytab"`
	Principal string `toml:"principal"`
	SPNHost   string `toml:"spn_host"`
}

// LoadFile reads and strictly decodes the TOML file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// apply copies values from f into c for every flag not changed on fs.
func (c *Common) apply(fs *pflag.FlagSet, f *File) error {
	unset := func(name string) bool { return !fs.Changed(name) }

	if f.Proxy != "" {
		c.Proxy = f.Proxy
	}
	if f.Verbose != 0 && unset("verbose") {
		c.Verbose = f.Verbose
	}
	if f.DialTimeout != "" && unset("dial-timeout") {
		d, err := time.ParseDuration(f.DialTimeout)
		if err != nil {
			return fmt.Errorf("config: dial_timeout: %w", err)
		}
		c.DialTimeout = d
	}
	if f.NegotiationTimeout != "" && unset("negotiation-timeout") {
		d, err := time.ParseDuration(f.NegotiationTimeout)
		if err != nil {
			return fmt.Errorf("config: negotiation_timeout: %w", err)
		}
		c.NegotiationTimeout = d
	}
	if f.MaxHeaderBytes != 0 && unset("max-header-bytes") {
		c.MaxHeaderBytes = f.MaxHeaderBytes
	}
	if f.TCPKeepAlive != "" && unset("tcp-keepalive") {
		c.TCPKeepAlive = f.TCPKeepAlive
	}

	k := f.Kerberos
	for _, v := range []struct {
		flag string
		src  string
		dst  *string
	}{
		{"krb5-conf", k.Krb5Conf, &c.Kerberos.Krb5Conf},
		{"krb5-ccache", k.CCache, &c.Kerberos.CCache},
		{"keytab", k.Keytab, &c.Kerberos.Keytab},
		{"principal", k.Principal, &c.Kerberos.Principal},
		{"spn-host", k.SPNHost, &c.Kerberos.SPNHost},
	} {
		if v.src != "" && unset(v.flag) {
			*v.dst = v.src
		}
	}
	return nil
}
