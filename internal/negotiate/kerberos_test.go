//go:build !windows

package negotiate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewKeytabRequiresPrincipal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal string
		wantErr   bool
	}{
		{name: "missing", principal: "", wantErr: true},
		{name: "no realm", principal: "alice", wantErr: true},
		{name: "empty user", principal: "@EXAMPLE.COM", wantErr: true},
		{name: "ok", principal: "alice@EXAMPLE.COM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(Config{Krb5Conf: "/nonexistent", Keytab: "/nonexistent.keytab", Principal: tt.principal})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenMissingConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := New(Config{
		Krb5Conf: filepath.Join(dir, "krb5.conf"),
		CCache:   filepath.Join(dir, "krb5cc"),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Token(context.Background(), "proxy.example.com")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("got %v want ErrAuthentication", err)
	}
	if !strings.Contains(err.Error(), "HTTP/proxy.example.com") {
		t.Fatalf("error does not name the SPN: %v", err)
	}
}

func TestTokenMissingCCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	conf := filepath.Join(dir, "krb5.conf")
	krb5 := "[libdefaults]\n default_realm = EXAMPLE.COM\n\n[realms]\n EXAMPLE.COM = {\n  kdc = 127.0.0.1:88\n }\n"
	if err := os.WriteFile(conf, []byte(krb5), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := New(Config{Krb5Conf: conf, CCache: filepath.Join(dir, "missing"), SPNHost: "spn.example.com"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Token(context.Background(), "proxy.example.com")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("got %v want ErrAuthentication", err)
	}
	if !strings.Contains(err.Error(), "HTTP/spn.example.com") {
		t.Fatalf("SPN host override not applied: %v", err)
	}
}

func TestTokenCanceledContext(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Krb5Conf: "/nonexistent", CCache: "/nonexistent"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Token(ctx, "proxy.example.com")
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrAuthentication) {
		t.Fatalf("got %v", err)
	}
}

func TestDefaultCCache(t *testing.T) {
	t.Setenv("KRB5CCNAME", "FILE:/tmp/krb5cc_test")
	if got := DefaultCCache(); got != "/tmp/krb5cc_test" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("KRB5CCNAME", "")
	if got := DefaultCCache(); !strings.HasPrefix(got, "/tmp/krb5cc_") {
		t.Fatalf("got %q", got)
	}
}

func TestDefaultKrb5Conf(t *testing.T) {
	t.Setenv("KRB5_CONFIG", "/etc/custom-krb5.conf")
	if got := DefaultKrb5Conf(); got != "/etc/custom-krb5.conf" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("KRB5_CONFIG", "")
	if got := DefaultKrb5Conf(); got != "/etc/krb5.conf" {
		t.Fatalf("got %q", got)
	}
}
