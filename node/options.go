package node

import (
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
)

// Option configures a Node at creation.
type Option func(*options)

type options struct {
	settings engine.Settings
	logger   *zap.Logger
	onError  func(error)
	userdata any
	raise    bool
}

// WithSettings overrides the engine's default settings. Zero fields keep
// the engine default.
func WithSettings(s engine.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithRaiseOnError controls whether engine failures surface as errors or
// only as status codes. It is on by default.
func WithRaiseOnError(raise bool) Option {
	return func(o *options) {
		o.raise = raise
	}
}

// WithLogger sets the logger for this node. The package logger is used
// otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithErrorHandler installs fn to observe handler and policy failures.
// fn is called on the engine's callback goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithUserdata attaches an arbitrary host value to the node.
func WithUserdata(v any) Option {
	return func(o *options) {
		o.userdata = v
	}
}

func mergeSettings(base, override engine.Settings) engine.Settings {
	if override.LogFile != "" {
		base.LogFile = override.LogFile
	}
	if override.Threads != 0 {
		base.Threads = override.Threads
	}
	if override.LogLevel != 0 {
		base.LogLevel = override.LogLevel
	}
	if override.LeafsetSize != 0 {
		base.LeafsetSize = override.LeafsetSize
	}
	if override.JobqueueSize != 0 {
		base.JobqueueSize = override.JobqueueSize
	}
	if override.MaxMsgsPerSec != 0 {
		base.MaxMsgsPerSec = override.MaxMsgsPerSec
	}
	return base
}
