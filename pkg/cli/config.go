/*
Package cli facilitates building command-line applications on top of the carpool client. It defines
a [Config] type that registers common command-line flags (using the Golang flag package) and their
environment variable equivalents.

Session tokens are kept in an OS-dependent credential store through [keyring]'s platform-agnostic
interface, or in Redis when several processes share a session.

# Examples

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the API, keyring, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables

	client, err := config.Client(ctx) // Restores the persisted session, if any.
	if err != nil {
		panic(err)
	}
	defer config.Close(client)        // Saves the query cache if configured.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/caarlos0/env/v11"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

const keyringServiceName = tokenstore.KeyringService

// CacheMaxAge is how long entries restored from a cache file are considered fresh.
const CacheMaxAge = 5 * time.Minute

// Environment lists the variables read by [Config.ReadFromEnvironment].
type Environment struct {
	APIURL          string `env:"CARPOOL_API_URL"`
	Profile         string `env:"CARPOOL_PROFILE"`
	KeyringType     string `env:"CARPOOL_KEYRING_TYPE"`
	KeyringPassword string `env:"CARPOOL_KEYRING_PASSWORD"`
	KeyringPath     string `env:"CARPOOL_KEYRING_PATH"`
	KeyringDebug    bool   `env:"CARPOOL_KEYRING_DEBUG"`
	CacheFile       string `env:"CARPOOL_CACHE_FILE"`
	RedisAddr       string `env:"CARPOOL_REDIS_ADDR"`
	Verbose         bool   `env:"CARPOOL_VERBOSE"`
}

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagAPI     Flag = 1 // Enable API URL option.
	FlagKeyring Flag = 2 // Enable keyring options. Required for persisting sessions.
	FlagCache   Flag = 4 // Enable query cache file option.
	FlagRedis   Flag = 8 // Enable Redis token store option.
	FlagAll     Flag = FlagAPI | FlagKeyring | FlagCache | FlagRedis
)

var ErrKeyNotFound = keyring.ErrKeyNotFound

// Config fields determine how a client reaches the API and where it keeps session state.
type Config struct {
	Flags         Flag   // Controls which set of environment variables/CLI flags to use.
	APIURL        string // API root, e.g. https://carpool.example.com/api/
	Profile       string // Names the account whose tokens are loaded; allows several logins.
	CacheFilename string
	RedisAddr     string
	Verbose       bool
	Backend       keyring.Config
	BackendType   backendType
	Debug         bool // Enable keyring debug messages

	password *string
	store    tokenstore.Store
	ctx      context.Context
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// RegisterCommandLineFlags adds c's options to the default flag set.
func (c *Config) RegisterCommandLineFlags() {
	c.RegisterFlags(flag.CommandLine)
}

// RegisterFlags adds c's options to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Verbose, "debug", false, "Enable verbose debugging messages. Defaults to $CARPOOL_VERBOSE.")
	if c.Flags.isSet(FlagAPI) {
		fs.StringVar(&c.APIURL, "api", "", "API root `url`. Defaults to $CARPOOL_API_URL.")
	}
	if c.Flags.isSet(FlagCache) {
		fs.StringVar(&c.CacheFilename, "query-cache", "", "Load and save query cache in `file`. Defaults to $CARPOOL_CACHE_FILE.")
	}
	if c.Flags.isSet(FlagRedis) {
		fs.StringVar(&c.RedisAddr, "redis", "", "Store tokens in Redis at `addr` instead of the keyring. Defaults to $CARPOOL_REDIS_ADDR.")
	}
	if c.Flags.isSet(FlagKeyring) || c.Flags.isSet(FlagRedis) {
		fs.StringVar(&c.Profile, "profile", "", "`name` under which session tokens are stored. Defaults to $CARPOOL_PROFILE.")
	}
	if c.Flags.isSet(FlagKeyring) {
		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		fs.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $CARPOOL_KEYRING_TYPE.")
		fs.StringVar(&c.Backend.FileDir, "keyring-file-dir", "", "keyring `directory` for file-backed keyring types. Defaults to $CARPOOL_KEYRING_PATH or "+keyringDirectory+".")
		fs.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() error {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if !c.Verbose && e.Verbose {
		c.Verbose = true
	}
	if c.Verbose {
		log.SetLevel(log.LevelDebug)
	}
	if c.Flags.isSet(FlagAPI) && c.APIURL == "" {
		c.APIURL = e.APIURL
		log.Debug("Set API URL to '%s'", c.APIURL)
	}
	if c.Flags.isSet(FlagCache) && c.CacheFilename == "" {
		c.CacheFilename = e.CacheFile
		log.Debug("Set query cache file to '%s'", c.CacheFilename)
	}
	if c.Flags.isSet(FlagRedis) && c.RedisAddr == "" {
		c.RedisAddr = e.RedisAddr
		log.Debug("Set Redis address to '%s'", c.RedisAddr)
	}
	if c.Profile == "" {
		c.Profile = e.Profile
	}
	if c.Flags.isSet(FlagKeyring) {
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(e.KeyringType); err != nil {
				return err
			}
			log.Debug("Set keyring type to '%s'", c.BackendType)
		}
		if c.password == nil {
			password := e.KeyringPassword
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len(password)))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = e.KeyringPath
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = keyringDirectory
		}
		log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		if !c.Debug {
			c.Debug = e.KeyringDebug
		}
	}
	return nil
}

// Client constructs a carpool.Client from c and restores the persisted session. A failure to
// restore the session is logged, not returned; the client is then anonymous.
func (c *Config) Client(ctx context.Context) (*carpool.Client, error) {
	c.ctx = ctx
	var store tokenstore.Store
	if c.Flags.isSet(FlagKeyring) || c.Flags.isSet(FlagRedis) {
		var err error
		if store, err = c.TokenStore(); err != nil {
			return nil, err
		}
	}
	client, err := carpool.New(carpool.Config{
		BaseURL: c.APIURL,
		Store:   store,
	})
	if err != nil {
		return nil, err
	}
	if err := c.loadCache(client); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.Bootstrap(ctx); err != nil {
		log.Warning("Could not restore session: %s", err)
	}
	return client, nil
}

func (c *Config) loadCache(client *carpool.Client) error {
	if !c.Flags.isSet(FlagCache) || c.CacheFilename == "" {
		return nil
	}
	log.Debug("Loading query cache from %s...", c.CacheFilename)
	n, err := client.Cache.ImportFromFile(c.CacheFilename, CacheMaxAge)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load query cache: %w", err)
	}
	log.Debug("Restored %d cache entries", n)
	return nil
}

// SaveCache writes client's query cache to c.CacheFilename. It does nothing if no cache file is
// configured or no session is active, since cached data belongs to the logged-in user.
func (c *Config) SaveCache(client *carpool.Client) {
	if !c.Flags.isSet(FlagCache) || c.CacheFilename == "" {
		return
	}
	if client.Current() == nil {
		return
	}
	if err := client.Cache.ExportToFile(c.CacheFilename); err != nil {
		log.Error("Error updating cache: %s", err)
	}
}

// Close saves the query cache and releases client's resources.
func (c *Config) Close(client *carpool.Client) {
	c.SaveCache(client)
	client.Close()
	if closer, ok := c.store.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// SaveToken persists an access token obtained out of band, such as from a browser session. It is
// kept until the expiry embedded in the token, or for the default session lifetime.
func (c *Config) SaveToken(token string, ttl time.Duration) error {
	store, err := c.TokenStore()
	if err != nil {
		return err
	}
	return store.Set(tokenstore.AccessToken, strings.TrimSpace(token), ttl)
}
