// Package config loads the docwire command configuration from TOML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/WhileEndless/go-docwire/pkg/docstore"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
	"github.com/WhileEndless/go-docwire/pkg/version"
)

// Config is the root of a docwire configuration file.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Store   StoreConfig   `toml:"store"`
	Search  SearchConfig  `toml:"search"`
	Logging LoggingConfig `toml:"logging"`
}

// ClientConfig holds transport settings. Timeouts are milliseconds; a
// negative value disables the timeout.
type ClientConfig struct {
	ConnectTimeoutMS    int    `toml:"connect_timeout_ms"`
	SendTimeoutMS       int    `toml:"send_timeout_ms"`
	ReceiveTimeoutMS    int    `toml:"receive_timeout_ms"`
	DisconnectTimeoutMS int    `toml:"disconnect_timeout_ms"`
	SendBufferSize      int    `toml:"send_buffer_size"`
	ReceiveBufferSize   int    `toml:"receive_buffer_size"`
	UserAgent           string `toml:"user_agent"`
	ConnIP              string `toml:"conn_ip"`
}

type StoreConfig struct {
	BaseURL           string `toml:"base_url"`
	Database          string `toml:"database"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	ContinueThreshold int64  `toml:"continue_threshold"`
}

type SearchConfig struct {
	BaseURL string `toml:"base_url"`
	Core    string `toml:"core"`
}

// LoggingConfig selects level, format ("console" or "json") and target
// ("stdout", "stderr" or an absolute file path).
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Target string `toml:"target"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	return Parse(data)
}

// Parse decodes TOML data, applies defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	cl := &c.Client
	if cl.ConnectTimeoutMS == 0 {
		cl.ConnectTimeoutMS = 30000
	}
	if cl.SendTimeoutMS == 0 {
		cl.SendTimeoutMS = 30000
	}
	if cl.ReceiveTimeoutMS == 0 {
		cl.ReceiveTimeoutMS = 30000
	}
	if cl.DisconnectTimeoutMS == 0 {
		cl.DisconnectTimeoutMS = 5000
	}
	if cl.SendBufferSize == 0 {
		cl.SendBufferSize = 8192
	}
	if cl.ReceiveBufferSize == 0 {
		cl.ReceiveBufferSize = 8192
	}
	if cl.UserAgent == "" {
		cl.UserAgent = version.UserAgent()
	}

	if c.Store.BaseURL == "" {
		c.Store.BaseURL = "http://localhost:5984"
	}
	if c.Store.ContinueThreshold == 0 {
		c.Store.ContinueThreshold = docstore.DefaultContinueThreshold
	}
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = "http://localhost:8983/solr"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Target == "" {
		c.Logging.Target = "stderr"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Client.SendBufferSize < 0 || c.Client.ReceiveBufferSize < 0 {
		return errors.New("config: client buffer sizes must be positive")
	}
	for name, raw := range map[string]string{"store.base_url": c.Store.BaseURL, "search.base_url": c.Search.BaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			return fmt.Errorf("config: %s must be an absolute http URL, got %q", name, raw)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json, got %q", c.Logging.Format)
	}
	if t := c.Logging.Target; t != "stdout" && t != "stderr" && !strings.HasPrefix(t, "/") {
		return fmt.Errorf("config: logging.target must be stdout, stderr or an absolute path, got %q", t)
	}
	return nil
}

func millis(ms int) time.Duration {
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

// ClientOptions converts the [client] section to transport options.
func (c *Config) ClientOptions() rawhttp.Options {
	return rawhttp.Options{
		ConnIP:            c.Client.ConnIP,
		ConnTimeout:       millis(c.Client.ConnectTimeoutMS),
		WriteTimeout:      millis(c.Client.SendTimeoutMS),
		ReadTimeout:       millis(c.Client.ReceiveTimeoutMS),
		DisconnectTimeout: millis(c.Client.DisconnectTimeoutMS),
		SendBufferSize:    c.Client.SendBufferSize,
		ReceiveBufferSize: c.Client.ReceiveBufferSize,
		UserAgent:         c.Client.UserAgent,
	}
}

// StoreOptions converts the [store] section.
func (c *Config) StoreOptions() docstore.Options {
	return docstore.Options{
		BaseURL:           c.Store.BaseURL,
		Database:          c.Store.Database,
		Username:          c.Store.Username,
		Password:          c.Store.Password,
		ContinueThreshold: c.Store.ContinueThreshold,
	}
}
