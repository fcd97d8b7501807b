package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/cli"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Run without a COMMAND to start an interactive shell.
 * Sessions persist in the system keyring between runs; use -profile to keep several logins.
 * Results are printed as JSON.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(client *carpool.Client, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, client, args); err != nil {
		var validationErr *protocol.ValidationError
		switch {
		case errors.Is(err, protocol.ErrNoSession) || errors.Is(err, ErrRequiresLogin):
			writeErr("Not logged in. Run: login EMAIL")
		case protocol.IsUnauthorized(err):
			writeErr("Session expired: %s", err)
		case errors.As(err, &validationErr) && len(validationErr.Fields) > 1:
			writeErr("Request rejected:")
			for field, messages := range validationErr.Fields {
				writeErr("  %s: %s", field, strings.Join(messages, " "))
			}
		case protocol.Temporary(err):
			writeErr("Failed to execute command (try again later): %s", err)
		default:
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(client *carpool.Client, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			printHelp(args)
			continue
		}
		runCommand(client, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func printHelp(args []string) int {
	if len(args) == 1 {
		Usage()
		return 0
	}
	info, ok := commands[args[1]]
	if !ok {
		writeErr("Unrecognized command: %s", args[1])
		return 1
	}
	info.Usage(args[1])
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		return
	}
	flag.Usage = Usage
	flag.DurationVar(&commandTimeout, "command-timeout", 15*time.Second, "Set timeout for each command.")
	flag.DurationVar(&connTimeout, "connect-timeout", 20*time.Second, "Set timeout for restoring the persisted session.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if err := config.ReadFromEnvironment(); err != nil {
		writeErr("Invalid environment: %s", err)
		return
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			status = printHelp(args)
			return
		}
		if _, ok := commands[args[0]]; !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
	}
	readSecret = config.ReadSecret

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	client, err := config.Client(ctx)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer config.Close(client)

	if len(args) > 0 {
		status = runCommand(client, args, commandTimeout)
	} else {
		status = runInteractiveShell(client, commandTimeout)
	}
}
