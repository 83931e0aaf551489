//go:build linux

// Package config loads the daemon's TOML configuration and turns it into
// reactor options and port registrations.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cdoenges/misclib/application/echo"
	"github.com/cdoenges/misclib/application/stop"
	"github.com/cdoenges/misclib/server"
	"github.com/cdoenges/misclib/transport"
)

// Application names accepted in a port's app field.
const (
	AppEcho  = "echo"
	AppUpper = "upper"
	AppStop  = "stop"
)

type Config struct {
	WaitTimeout  time.Duration `toml:"wait_timeout"`
	ClientPolicy string        `toml:"client_policy"`
	AcceptErrors string        `toml:"accept_errors"`
	ExitOnIdle   bool          `toml:"exit_on_idle"`
	Backlog      int           `toml:"backlog"`
	MetricsAddr  string        `toml:"metrics_addr"`
	LogLevel     string        `toml:"log_level"`
	LogFormat    string        `toml:"log_format"`
	Ports        []Port        `toml:"port"`
}

type Port struct {
	Port uint16 `toml:"port"`
	App  string `toml:"app"`
}

func Default() *Config {
	return &Config{
		WaitTimeout:  server.DefaultWaitTimeout,
		ClientPolicy: server.ClientPolicyMulti.String(),
		AcceptErrors: server.AcceptErrorFatal.String(),
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads path over the defaults and validates the result. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates it.
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParsePortFlag reads the command line form "port:app", e.g. "9000:upper".
func ParsePortFlag(s string) (Port, error) {
	num, app, ok := strings.Cut(s, ":")
	if !ok {
		return Port{}, fmt.Errorf("invalid port %q (want port:app)", s)
	}
	n, err := strconv.ParseUint(num, 10, 16)
	if err != nil {
		return Port{}, fmt.Errorf("invalid port number in %q: %w", s, err)
	}
	p := Port{Port: uint16(n), App: app}
	if err := p.Validate(); err != nil {
		return Port{}, err
	}
	return p, nil
}

func (c *Config) Validate() error {
	if c.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must not be negative")
	}
	if c.Backlog < 0 {
		return fmt.Errorf("backlog must not be negative")
	}
	if _, err := server.ParseClientPolicy(c.ClientPolicy); err != nil {
		return err
	}
	if _, err := server.ParseAcceptErrorPolicy(c.AcceptErrors); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.LogFormat)
	}

	seen := make(map[uint16]bool, len(c.Ports))
	for i, p := range c.Ports {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("port entry %d: %w", i, err)
		}
		if p.Port != 0 && seen[p.Port] {
			return fmt.Errorf("port %d is configured more than once", p.Port)
		}
		seen[p.Port] = true
	}
	return nil
}

func (p Port) Validate() error {
	switch p.App {
	case AppEcho, AppUpper, AppStop:
		return nil
	default:
		return fmt.Errorf("invalid app: %q (must be echo, upper, or stop)", p.App)
	}
}

// Level is the slog level named by log_level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return level, nil
}

// Options converts the reactor settings. Logger and Metrics are left for
// the caller.
func (c *Config) Options() (server.Options, error) {
	policy, err := server.ParseClientPolicy(c.ClientPolicy)
	if err != nil {
		return server.Options{}, err
	}
	acceptErrors, err := server.ParseAcceptErrorPolicy(c.AcceptErrors)
	if err != nil {
		return server.Options{}, err
	}
	return server.Options{
		WaitTimeout:  c.WaitTimeout,
		Backlog:      c.Backlog,
		ClientPolicy: policy,
		AcceptErrors: acceptErrors,
		ExitOnIdle:   c.ExitOnIdle,
	}, nil
}

// PortConfigurations binds each configured port to its application.
func (c *Config) PortConfigurations(logger *slog.Logger) ([]server.PortConfiguration, error) {
	confs := make([]server.PortConfiguration, 0, len(c.Ports))
	for _, p := range c.Ports {
		var app transport.Transport
		switch p.App {
		case AppEcho:
			app = echo.NewEchoApplication(echo.ModeEcho, logger)
		case AppUpper:
			app = echo.NewEchoApplication(echo.ModeUpper, logger)
		case AppStop:
			app = stop.NewStopApplication(logger)
		default:
			return nil, fmt.Errorf("port %d: invalid app %q", p.Port, p.App)
		}
		confs = append(confs, transport.Bind(p.Port, app))
	}
	return confs, nil
}
