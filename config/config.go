package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/itish2003/prompt-relay/logging"
)

const (
	DefaultListenAddress   = ":5000"
	DefaultReverseProxyURL = "https://ai.fakeopen.com/api/conversation"
	DefaultModel           = "text-davinci-002-render-sha"

	envPrefix = "RELAY"
)

var log = logging.GetLogger()

// LoadConfig builds the configuration from defaults, an optional .env file, RELAY_* environment
// variables, the optional YAML config file and finally the command line.
func LoadConfig(cli *CliConfig) (*Config, error) {
	if cli == nil {
		cli = &CliConfig{}
	}

	// Load .env file from the current directory
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading .env file: %w", err)
		}
		log.Debugln("No .env file found, relying on environment variables.")
	}

	v, err := newViper(cli)
	if err != nil {
		return nil, err
	}

	var configuration Config
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// newViper layers defaults, RELAY_* environment, the optional config file and command-line
// overrides, in increasing order of precedence.
func newViper(cli *CliConfig) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cli.ConfigFile != "" {
		v.SetConfigFile(cli.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if cli.ListenAddress != "" {
		v.Set("listen_address", cli.ListenAddress)
	}
	if cli.Debug {
		v.Set("log_level", "debug")
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("log_level", "info")
	v.SetDefault("upstream.reverse_proxy_url", DefaultReverseProxyURL)
	v.SetDefault("upstream.model", DefaultModel)
	v.SetDefault("upstream.timeout", "0s")
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen_address is required")
	}
	if c.Upstream.ReverseProxyURL == "" {
		return errors.New("upstream.reverse_proxy_url is required")
	}
	u, err := url.Parse(c.Upstream.ReverseProxyURL)
	if err != nil {
		return fmt.Errorf("upstream.reverse_proxy_url is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.reverse_proxy_url must be an absolute http(s) URL, got %q", c.Upstream.ReverseProxyURL)
	}
	if c.Upstream.Model == "" {
		return errors.New("upstream.model is required")
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("upstream.timeout must not be negative")
	}
	return nil
}

// WatchLogLevel re-reads the config file whenever it changes and passes the effective log_level
// to apply. RELAY_LOG_LEVEL and --debug keep precedence over the file, as in LoadConfig.
// It is a no-op without a config file.
func WatchLogLevel(cli *CliConfig, apply func(level string) error) error {
	if cli == nil || cli.ConfigFile == "" {
		return nil
	}
	v, err := newViper(cli)
	if err != nil {
		return err
	}
	v.OnConfigChange(levelChangeHandler(v, apply))
	v.WatchConfig()
	log.Debugf("Watching %s for log_level changes", cli.ConfigFile)
	return nil
}

// levelChangeHandler applies log_level only when the layered value differs from the last one applied.
func levelChangeHandler(v *viper.Viper, apply func(level string) error) func(fsnotify.Event) {
	current := v.GetString("log_level")
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log_level")
		if level == "" || level == current {
			return
		}
		if err := apply(level); err != nil {
			log.Warnf("Ignoring log_level from %s: %v", e.Name, err)
			return
		}
		current = level
		log.Infof("Log level set to %s from %s", level, e.Name)
	}
}
