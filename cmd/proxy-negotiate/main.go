// Command proxy-negotiate is a local forwarding proxy for applications that
// cannot authenticate to an upstream proxy with HTTP Negotiate themselves.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/proxy-negotiate/internal/config"
	"github.com/die-net/proxy-negotiate/internal/dialer"
	"github.com/die-net/proxy-negotiate/internal/metrics"
	"github.com/die-net/proxy-negotiate/internal/proxy"
	"github.com/die-net/proxy-negotiate/internal/tproxy"
)

const (
	exitShutdown = 1
	exitAbort    = 2
)

type listenOptions struct {
	host   string
	port   int
	socks5 string
	tproxy string
	debug  string
}

// newProvider builds the token provider; tests replace it.
var newProvider = (*config.Common).Provider

func main() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	os.Exit(run(os.Args[1:], sigs, os.Stdout, os.Stderr))
}

// run serves until the proxy is shut down by the first value on sigs, and
// returns the process exit status.
func run(args []string, sigs <-chan os.Signal, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("proxy-negotiate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: proxy-negotiate [flags] PROXY:PORT")
		fmt.Fprintln(stderr, "\nA thin, transparent proxy server for applications that do not natively support Negotiate authentication.")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	var common config.Common
	var opts listenOptions
	fs.StringVar(&opts.host, "host", "127.0.0.1", "Hostname or IP to listen for connections on")
	fs.IntVar(&opts.port, "port", 8080, "Port to listen for connections on")
	fs.StringVar(&opts.socks5, "socks5-listen", "", "SOCKS5 listen address (e.g. 127.0.0.1:1080). Empty disables.")
	fs.StringVar(&opts.tproxy, "tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")
	fs.StringVar(&opts.debug, "debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
	common.AddFlags(fs)
	if !tproxy.Supported {
		_ = fs.MarkHidden("tproxy-listen")
	}
	fs.SortFlags = false

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return exitShutdown
	}
	if err := common.Load(fs); err != nil {
		fmt.Fprintln(stderr, err)
		return exitShutdown
	}

	upstream := common.Proxy
	if fs.NArg() == 1 {
		upstream = fs.Arg(0)
	}
	if fs.NArg() > 1 || upstream == "" {
		fs.Usage()
		return exitShutdown
	}

	log := config.NewLogger(stderr, common.Verbose)

	srv, wait, err := setup(&common, upstream, opts, stdout, log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitShutdown
	}

	aborted := make(chan int, 1)
	go watchSignals(sigs, srv.Close, func() {
		fmt.Fprintln(stderr, "Multiple exit signals received - aborting.")
		aborted <- exitAbort
	})

	done := make(chan error, 1)
	go func() {
		err := wait()
		if err != nil {
			// A failed listener takes the proxy down with it.
			_ = srv.Close()
		}
		srv.Wait()
		done <- err
	}()

	select {
	case code := <-aborted:
		return code
	case err := <-done:
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
		fmt.Fprintln(stderr, "Closing Proxy server.")
		return exitShutdown
	}
}

// watchSignals closes the server on the first signal. Any later signal finds
// it already closed, which means shutdown is stuck, and calls abort.
func watchSignals(sigs <-chan os.Signal, closeServer func() error, abort func()) {
	for range sigs {
		if err := closeServer(); errors.Is(err, proxy.ErrAlreadyClosed) {
			abort()
			return
		}
	}
}

// setup opens every listener and returns the proxy server plus a func that
// waits until the server is closed or one of the listeners fails.
func setup(common *config.Common, upstreamArg string, opts listenOptions, stdout io.Writer, log *slog.Logger) (*proxy.Server, func() error, error) {
	ka, err := config.ParseTCPKeepAlive(common.TCPKeepAlive)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	upstream, err := config.ParseHostPort(upstreamArg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid proxy address: %w", err)
	}

	provider, err := newProvider(common)
	if err != nil {
		return nil, nil, fmt.Errorf("negotiate: %w", err)
	}

	m := metrics.New()

	tunnel, err := dialer.New(dialer.Config{
		DialTimeout:        common.DialTimeout,
		NegotiationTimeout: common.NegotiationTimeout,
		KeepAlive:          ka,
		MaxHeaderBytes:     common.MaxHeaderBytes,
		Provider:           provider,
		Logger:             log,
		Metrics:            m,
	}, upstream)
	if err != nil {
		return nil, nil, err
	}

	cfg := proxy.Config{
		Upstream:           upstream,
		Provider:           provider,
		Dialer:             tunnel.Direct(),
		Tunnel:             tunnel,
		NegotiationTimeout: common.NegotiationTimeout,
		MaxHeaderBytes:     common.MaxHeaderBytes,
		Logger:             log,
		Metrics:            m,
	}

	listen := net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	ln, err := proxy.ListenTCP(context.Background(), "tcp", listen, ka)
	if err != nil {
		return nil, nil, err
	}

	g, ctx := errgroup.WithContext(context.Background())
	srv := proxy.NewServer(ctx, cfg)

	// The other front-ends stop when the proxy server is closed.
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-srv.Done()
		cancel()
	}()

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, proxy.ErrServerClosed) {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})

	if opts.debug != "" {
		http.Handle("/metrics", m.Handler())
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", opts.debug)
		if err != nil {
			_ = srv.Close()
			return nil, nil, fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() { _ = debugSrv.Close() })

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Info("debug listening", "addr", opts.debug)
	}

	if opts.socks5 != "" {
		socksLn, err := proxy.ListenTCP(ctx, "tcp", opts.socks5, ka)
		if err != nil {
			_ = srv.Close()
			return nil, nil, fmt.Errorf("socks5 listen: %w", err)
		}
		s5 := proxy.NewSOCKS5Server(ctx, cfg)

		g.Go(func() error {
			if err := s5.Serve(socksLn); err != nil {
				return fmt.Errorf("socks5 serve: %w", err)
			}
			return nil
		})
		log.Info("socks5 proxy listening", "addr", opts.socks5)
	}

	if opts.tproxy != "" {
		tLn, err := tproxy.Listen(ctx, opts.tproxy, ka)
		if err != nil {
			_ = srv.Close()
			return nil, nil, err
		}
		tsrv := tproxy.NewServer(ctx, cfg)

		g.Go(func() error {
			if err := tsrv.Serve(tLn); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		log.Info("tproxy listening", "addr", opts.tproxy)
	}

	fmt.Fprintf(stdout, "Initiating proxy. Listening and forwarding on:\n%s->%s\n", listen, upstream)

	return srv, g.Wait, nil
}
