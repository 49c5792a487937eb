package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/dishpal-ai/dishpal-cli/internal/logger"
)

const (
	defaultAPIURL       = "https://api.dishpal.ai"
	defaultLoggingLevel = logger.LevelInfo
	defaultHTTPTimeout  = 10 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Base URL of the Dishpal backend
	APIURL string

	// Password used for accounts created through Google sign-in
	// The backend expects one shared password for provider-originated accounts
	OAuthPassword string

	// Path of the credential file. Empty means the per-user default location
	CredFile string

	// Timeout applied to every backend call
	HTTPTimeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		APIURL:      defaultAPIURL,
		HTTPTimeout: defaultHTTPTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}

	envMap := map[string]func(string){
		"DISHPAL_API_URL":        setString(&c.APIURL),
		"DISHPAL_OAUTH_PASSWORD": setString(&c.OAuthPassword),
		"DISHPAL_CRED_FILE":      setString(&c.CredFile),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"DISHPAL_HTTP_TIMEOUT":   setDuration(&c.HTTPTimeout),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

// ParseFlags parses global flags and returns the remaining positional args
// (the subcommand and its arguments).
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("dishpal", pflag.ContinueOnError)

	fs.StringVarP(&c.APIURL, "api-url", "u", c.APIURL, "Dishpal backend base URL")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.CredFile, "cred-file", "c", c.CredFile, "Credential file path")
	fs.DurationVarP(&c.HTTPTimeout, "timeout", "t", c.HTTPTimeout, "HTTP timeout for backend calls")

	// Interspersed off so flags after the subcommand go to the subcommand
	fs.SetInterspersed(false)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
