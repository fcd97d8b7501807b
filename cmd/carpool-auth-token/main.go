// Utility for storing access tokens obtained outside the CLI, such as from a browser session

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/cli"
	"github.com/covoit/carpool-sdk/pkg/session"
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s [-profile name] [file]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Reads an access token from stdin or file and saves it as the session token of the")
	fmt.Fprintln(w, "given profile. The next carpool-control run resumes that session.")
	fmt.Fprintln(w, "")
	flag.PrintDefaults()
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	config, err := cli.NewConfig(cli.FlagKeyring | cli.FlagRedis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		return
	}

	flag.Usage = usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err := config.ReadFromEnvironment(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %s\n", err)
		return
	}

	var token []byte
	switch flag.NArg() {
	case 0:
		token, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token from stdin: %s\n", err)
			return
		}
	case 1:
		token, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token from file: %s\n", err)
			return
		}
	default:
		fmt.Fprintln(os.Stderr, "Too many command-line arguments")
		return
	}

	accessToken := strings.TrimSpace(string(token))
	if accessToken == "" {
		fmt.Fprintln(os.Stderr, "No token provided")
		return
	}
	ttl := time.Until(account.TokenExpiry(accessToken, session.DefaultAccessTTL))
	if ttl <= 0 {
		fmt.Fprintln(os.Stderr, "Token has already expired")
		return
	}

	if err := config.SaveToken(accessToken, ttl); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving token: %s\n", err)
		return
	}

	returnCode = 0
}
