package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/cli"
	"github.com/covoit/carpool-sdk/pkg/proxy"
)

const (
	defaultHost = "localhost"
	defaultPort = 8080
)

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication. Every client of the
gateway acts as the logged-in user.`

type HttpProxyConfig struct {
	keyFilename  string
	certFilename string
	selfSigned   bool
	host         string
	port         int
	timeout      time.Duration
}

// proxyEnvironment lists the variables read by readFromEnvironment.
type proxyEnvironment struct {
	TLSCert string        `env:"CARPOOL_HTTP_PROXY_TLS_CERT"`
	TLSKey  string        `env:"CARPOOL_HTTP_PROXY_TLS_KEY"`
	Host    string        `env:"CARPOOL_HTTP_PROXY_HOST"`
	Port    int           `env:"CARPOOL_HTTP_PROXY_PORT"`
	Timeout time.Duration `env:"CARPOOL_HTTP_PROXY_TIMEOUT"`
}

var (
	httpConfig = &HttpProxyConfig{}
)

func init() {
	flag.StringVar(&httpConfig.certFilename, "cert", "", "TLS certificate chain `file` with concatenated server, intermediate CA, and root CA certificates")
	flag.StringVar(&httpConfig.keyFilename, "tls-key", "", "Server TLS private key `file`")
	flag.BoolVar(&httpConfig.selfSigned, "self-signed", false, "Serve TLS with a generated self-signed certificate")
	flag.StringVar(&httpConfig.host, "host", defaultHost, "Proxy server `hostname`")
	flag.IntVar(&httpConfig.port, "port", defaultPort, "`Port` to listen on")
	flag.DurationVar(&httpConfig.timeout, "timeout", proxy.DefaultTimeout, "Timeout interval for API requests")
}

func Usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintf(out, "\nA server that shares one carpool session and query cache with local applications")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

func main() {
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	defer func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}()

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err = readFromEnvironment(); err != nil {
		return
	}
	if err = config.ReadFromEnvironment(); err != nil {
		return
	}

	if httpConfig.host != defaultHost {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("Restoring session")
	client, err := config.Client(ctx)
	if err != nil {
		return
	}
	defer config.Close(client)
	if s := client.Current(); s != nil {
		log.Info("Serving session of %s", s.Email)
	} else {
		log.Info("No session; clients must POST /auth/login")
	}

	log.Debug("Creating proxy")
	p := proxy.New(client)
	p.Timeout = httpConfig.timeout
	addr := fmt.Sprintf("%s:%d", httpConfig.host, httpConfig.port)

	server := &http.Server{Addr: addr, Handler: p}
	if httpConfig.selfSigned {
		var certPEM string
		if server, certPEM, err = NewServer(addr, p); err != nil {
			return
		}
		log.Debug("Serving self-signed certificate:\n%s", certPEM)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpConfig.timeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("Listening on %s", addr)
	switch {
	case httpConfig.certFilename != "" || httpConfig.keyFilename != "":
		err = server.ListenAndServeTLS(httpConfig.certFilename, httpConfig.keyFilename)
	case httpConfig.selfSigned:
		err = server.ListenAndServeTLS("", "")
	default:
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("Server stopped")
		err = nil
	}
}

// readFromEnvironment applies configuration from environment variables.
// Values set on the command line are not overwritten.
func readFromEnvironment() error {
	var e proxyEnvironment
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if httpConfig.certFilename == "" {
		httpConfig.certFilename = e.TLSCert
	}
	if httpConfig.keyFilename == "" {
		httpConfig.keyFilename = e.TLSKey
	}
	if httpConfig.host == defaultHost && e.Host != "" {
		httpConfig.host = e.Host
	}
	if httpConfig.port == defaultPort && e.Port != 0 {
		httpConfig.port = e.Port
	}
	if httpConfig.timeout == proxy.DefaultTimeout && e.Timeout != 0 {
		httpConfig.timeout = e.Timeout
	}
	return nil
}
