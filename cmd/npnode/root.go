package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/neuropil-go/config"
	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/node"
	"github.com/wippyai/neuropil-go/policy"
	"github.com/wippyai/neuropil-go/registry"
)

// app carries the global flags and everything PersistentPreRunE derives
// from them.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	configPath string
	backend    string
	wasmModule string
	logLevel   string
	logOutput  string
	policyFile string
	join       []string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "npnode",
		Short:        "Run a neuropil node",
		Long:         "npnode hosts a neuropil messaging node on the loopback, wasm or native engine\nand exposes its subjects, identities and AAA policy from the command line.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "npnode.yaml", "Path to the YAML configuration")
	f.StringVar(&a.backend, "backend", "", "Engine backend: loopback, wasm or native")
	f.StringVar(&a.wasmModule, "wasm", "", "Engine guest module for the wasm backend")
	f.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&a.logOutput, "log-output", "stderr", "Log destination path")
	f.StringVar(&a.policyFile, "policy", "", "AAA policy file, reloaded on change")
	f.StringSliceVar(&a.join, "join", nil, "Connect strings to join, repeatable")

	root.AddCommand(
		newRunCmd(a),
		newSendCmd(a),
		newIdentityCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and installs the
// logger on every package.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.wasmModule != "" {
		cfg.WasmModule = a.wasmModule
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.policyFile != "" {
		cfg.PolicyFile = a.policyFile
	}
	if len(a.join) > 0 {
		cfg.Join = a.join
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Level(), a.logOutput)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.setLogger(log)
	return nil
}

// setLogger installs log on the command and every package.
func (a *app) setLogger(log *zap.Logger) {
	engine.SetLogger(log.Named("engine"))
	node.SetLogger(log.Named("node"))
	registry.SetLogger(log.Named("registry"))
	policy.SetLogger(log.Named("policy"))
	a.log = log
}

func newLogger(level zapcore.Level, output string) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
