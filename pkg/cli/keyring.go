package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

const keyringDirectory = "~/.carpool_keys"

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage '%s'", v)
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

// ReadSecret prompts for a secret, such as an account password, without echoing it.
func (c *Config) ReadSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("cannot prompt for %s: stdin is not a terminal", prompt)
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	if c.Debug {
		keyring.Debug = true
	}
	return keyring.Open(c.Backend)
}

// TokenStore opens the store that persists session tokens. Redis is used if an address is
// configured; otherwise tokens are kept in the system keyring under the configured profile.
func (c *Config) TokenStore() (tokenstore.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	if c.Flags.isSet(FlagRedis) && c.RedisAddr != "" {
		store, err := tokenstore.DialRedis(c.context(), c.RedisAddr, c.Profile)
		if err != nil {
			return nil, err
		}
		c.store = store
		return store, nil
	}
	kr, err := c.openKeyring()
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}
	c.store = tokenstore.NewKeyring(kr, c.Profile)
	return c.store, nil
}
