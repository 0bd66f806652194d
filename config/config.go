// Package config loads npnode configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/node"
)

// Engine backends selectable by name.
const (
	BackendLoopback = "loopback"
	BackendWasm     = "wasm"
	BackendNative   = "native"
)

// ListenConfig is the address a node binds to. An empty protocol means the
// node does not listen.
type ListenConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
}

// Config is the complete configuration of one node.
type Config struct {
	Listen       ListenConfig    `yaml:"listen"`
	Backend      string          `yaml:"backend"`
	WasmModule   string          `yaml:"wasm_module"`
	LogLevel     string          `yaml:"log_level"`
	PolicyFile   string          `yaml:"policy_file"`
	Join         []string        `yaml:"join"`
	Engine       engine.Settings `yaml:"engine"`
	RunInterval  time.Duration   `yaml:"run_interval"`
	RaiseOnError bool            `yaml:"raise_on_error"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Protocol: "udp4",
			Host:     "localhost",
			Port:     3141,
		},
		Backend:      BackendLoopback,
		LogLevel:     "info",
		Engine:       engine.DefaultSettings(),
		RunInterval:  100 * time.Millisecond,
		RaiseOnError: true,
	}
}

// Load reads path on top of the defaults, then applies NP_* environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Config("parse "+path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Config("read "+path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Config("parse config", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("NP_BACKEND", &c.Backend)
	str("NP_WASM_MODULE", &c.WasmModule)
	str("NP_LOG_LEVEL", &c.LogLevel)
	str("NP_POLICY_FILE", &c.PolicyFile)
	str("NP_LISTEN_PROTOCOL", &c.Listen.Protocol)
	str("NP_LISTEN_HOST", &c.Listen.Host)
	str("NP_LOG_FILE", &c.Engine.LogFile)

	if v, ok := lookup("NP_JOIN"); ok {
		c.Join = nil
		for _, j := range strings.Split(v, ",") {
			if j = strings.TrimSpace(j); j != "" {
				c.Join = append(c.Join, j)
			}
		}
	}
	if v, ok := lookup("NP_LISTEN_PORT"); ok {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return errors.Config("NP_LISTEN_PORT", err)
		}
		c.Listen.Port = uint16(p)
	}
	if v, ok := lookup("NP_THREADS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Config("NP_THREADS", err)
		}
		c.Engine.Threads = uint32(n)
	}
	if v, ok := lookup("NP_RAISE_ON_ERROR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Config("NP_RAISE_ON_ERROR", err)
		}
		c.RaiseOnError = b
	}
	if v, ok := lookup("NP_RUN_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Config("NP_RUN_INTERVAL", err)
		}
		c.RunInterval = d
	}
	return nil
}

var protocols = map[string]bool{
	"tcp": true, "tcp4": true, "tcp6": true,
	"udp": true, "udp4": true, "udp6": true,
	"pas4": true, "pas6": true,
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLoopback, BackendNative:
	case BackendWasm:
		if c.WasmModule == "" {
			return errors.Config("wasm backend requires wasm_module", nil)
		}
	default:
		return errors.Config(fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}

	if c.Listen.Protocol != "" && !protocols[c.Listen.Protocol] {
		return errors.Config(fmt.Sprintf("unknown listen protocol %q", c.Listen.Protocol), nil)
	}
	if c.Engine.Threads == 0 {
		return errors.Config("engine.threads must be positive", nil)
	}
	if c.RunInterval <= 0 {
		return errors.Config("run_interval must be positive", nil)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Config("log_level", err)
	}
	for _, j := range c.Join {
		if strings.Count(j, ":") < 3 {
			return errors.Config(fmt.Sprintf("join address %q is not <id>:<protocol>:<host>:<port>", j), nil)
		}
	}
	return nil
}

// Level returns the configured zap level, or info if it does not parse.
func (c *Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// NodeOptions converts the configuration into node options.
func (c *Config) NodeOptions() []node.Option {
	return []node.Option{
		node.WithSettings(c.Engine),
		node.WithRaiseOnError(c.RaiseOnError),
	}
}
