package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestCommonFlags(t *testing.T) {
	t.Parallel()

	var c Common
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.AddFlags(fs)

	err := fs.Parse([]string{"-vv", "--dial-timeout=3s", "--spn-host", "proxy.corp.example", "proxy:3128"})
	if err != nil {
		t.Fatal(err)
	}

	if c.Verbose != 2 {
		t.Fatalf("Verbose = %d, want 2", c.Verbose)
	}
	if c.DialTimeout != 3*time.Second {
		t.Fatalf("DialTimeout = %v", c.DialTimeout)
	}
	if c.NegotiationTimeout != 10*time.Second {
		t.Fatalf("NegotiationTimeout = %v", c.NegotiationTimeout)
	}
	if c.Kerberos.SPNHost != "proxy.corp.example" {
		t.Fatalf("SPNHost = %q", c.Kerberos.SPNHost)
	}
	if got := fs.Args(); len(got) != 1 || got[0] != "proxy:3128" {
		t.Fatalf("Args() = %v", got)
	}
}

func TestCommonLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	data := `proxy = "proxy.example.com:3128"
verbose = 1
dial_timeout = "5s"
negotiation_timeout = "20s"
tcp_keepalive = "off"

[kerberos]
keytab = "/etc/svc.keytab"
principal = "svc@EXAMPLE.COM"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	var c Common
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.AddFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--dial-timeout=1s", "--principal=me@EXAMPLE.COM"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(fs); err != nil {
		t.Fatal(err)
	}

	if c.Proxy != "proxy.example.com:3128" {
		t.Fatalf("Proxy = %q", c.Proxy)
	}
	if c.Verbose != 1 {
		t.Fatalf("Verbose = %d, want 1", c.Verbose)
	}
	if c.DialTimeout != time.Second {
		t.Fatalf("DialTimeout = %v, flag should win", c.DialTimeout)
	}
	if c.NegotiationTimeout != 20*time.Second {
		t.Fatalf("NegotiationTimeout = %v", c.NegotiationTimeout)
	}
	if c.TCPKeepAlive != "off" {
		t.Fatalf("TCPKeepAlive = %q", c.TCPKeepAlive)
	}
	if c.Kerberos.Keytab != "/etc/svc.keytab" || c.Kerberos.Principal != "me@EXAMPLE.COM" {
		t.Fatalf("Kerberos = %+v", c.Kerberos)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("proxi = \"typo:1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
