package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/wippyai/neuropil-go/errors"
)

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendLoopback || cfg.Listen.Port != 3141 || !cfg.RaiseOnError {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	data := `
listen:
  port: 4000
join:
  - "*:udp4:localhost:3141"
engine:
  threads: 8
run_interval: 250ms
raise_on_error: false
policy_file: policy.yaml
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen.Port != 4000 || cfg.Listen.Protocol != "udp4" {
		t.Errorf("listen = %+v", cfg.Listen)
	}
	if cfg.Engine.Threads != 8 || cfg.Engine.JobqueueSize != 512 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.RunInterval != 250*time.Millisecond {
		t.Errorf("run_interval = %v", cfg.RunInterval)
	}
	if cfg.RaiseOnError {
		t.Error("raise_on_error not overridden")
	}
	if len(cfg.Join) != 1 || cfg.PolicyFile != "policy.yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen: [unclosed"), 0o600)

	if _, err := Load(path); !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("Load = %v, want config error", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NP_BACKEND":        "native",
		"NP_LISTEN_PORT":    "5000",
		"NP_THREADS":        "2",
		"NP_JOIN":           "*:udp4:a:1, ,*:udp4:b:2",
		"NP_RAISE_ON_ERROR": "false",
		"NP_RUN_INTERVAL":   "1s",
		"NP_LOG_LEVEL":      "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendNative || cfg.Listen.Port != 5000 || cfg.Engine.Threads != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Join) != 2 || cfg.Join[1] != "*:udp4:b:2" {
		t.Errorf("join = %q", cfg.Join)
	}
	if cfg.RaiseOnError || cfg.RunInterval != time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Level() != zapcore.DebugLevel {
		t.Errorf("Level = %v", cfg.Level())
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []string{"NP_LISTEN_PORT", "NP_THREADS", "NP_RAISE_ON_ERROR", "NP_RUN_INTERVAL"}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return "not-a-value", true
				}
				return "", false
			}
			if err := Default().applyEnv(lookup); !errors.IsKind(err, errors.KindConfig) {
				t.Errorf("applyEnv = %v, want config error", err)
			}
		})
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("NP_LISTEN_HOST", "example.org")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen.Host != "example.org" {
		t.Errorf("host = %q", cfg.Listen.Host)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no listen", func(c *Config) { c.Listen.Protocol = "" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "quantum" }, false},
		{"wasm without module", func(c *Config) { c.Backend = BackendWasm }, false},
		{"wasm with module", func(c *Config) { c.Backend = BackendWasm; c.WasmModule = "np.wasm" }, true},
		{"bad protocol", func(c *Config) { c.Listen.Protocol = "sctp" }, false},
		{"zero threads", func(c *Config) { c.Engine.Threads = 0 }, false},
		{"zero interval", func(c *Config) { c.RunInterval = 0 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad join", func(c *Config) { c.Join = []string{"localhost:3141"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.IsKind(err, errors.KindConfig) {
				t.Errorf("Validate = %v, want config error", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("backend: wasm\nwasm_module: np.wasm\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendWasm || cfg.WasmModule != "np.wasm" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.NodeOptions()) != 2 {
		t.Error("NodeOptions should carry settings and raise-on-error")
	}
}
