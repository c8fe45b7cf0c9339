// Command nc-negotiate is a thin netcat that opens a CONNECT tunnel through a
// proxy requiring Negotiate authentication and relays stdin and stdout over
// it. Typical use is as an ssh ProxyCommand:
//
//	ProxyCommand nc-negotiate %h:%p proxy.example.com:3128
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/die-net/proxy-negotiate/internal/config"
	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/netcat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.ReadCloser, stdout io.WriteCloser, stderr io.Writer) int {
	fs := pflag.NewFlagSet("nc-negotiate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: nc-negotiate [flags] TARGET:PORT [PROXY:PORT]")
		fmt.Fprintln(stderr, "\nA thin netcat implementation that handles Proxy Authentication for applications that cannot do so on their own.")
		fmt.Fprintf(stderr, "PROXY:PORT defaults to the first of %v that is set.\n\n", config.ProxyEnv)
		fs.PrintDefaults()
	}

	var common config.Common
	common.AddFlags(fs)
	fs.SortFlags = false

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}

	if err := common.Load(fs); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log := config.NewLogger(stderr, common.Verbose)

	target, err := config.ParseHostPort(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "invalid target: %v\n", err)
		return 1
	}

	var upstream string
	switch {
	case fs.NArg() == 2:
		upstream, err = config.ParseHostPort(fs.Arg(1))
	case common.Proxy != "":
		upstream, err = config.ParseHostPort(common.Proxy)
	default:
		upstream, err = config.ProxyFromEnv()
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ka, err := config.ParseTCPKeepAlive(common.TCPKeepAlive)
	if err != nil {
		fmt.Fprintf(stderr, "invalid --tcp-keepalive: %v\n", err)
		return 1
	}

	provider, err := common.Provider()
	if err != nil {
		fmt.Fprintf(stderr, "negotiate: %v\n", err)
		return 1
	}

	d, err := dialer.New(dialer.Config{
		DialTimeout:        common.DialTimeout,
		NegotiationTimeout: common.NegotiationTimeout,
		KeepAlive:          ka,
		MaxHeaderBytes:     common.MaxHeaderBytes,
		Provider:           provider,
		Logger:             log,
	}, upstream)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	err = netcat.Run(ctx, netcat.Config{Dialer: d, Logger: log}, target, stdin, stdout)
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "Closing down")
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, netcat.Report(err))
		log.Debug("tunnel failed", "err", err)
		return 1
	}
	return 0
}
