package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/config"
	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/engine/loopback"
	"github.com/wippyai/neuropil-go/engine/native"
	"github.com/wippyai/neuropil-go/engine/wasm"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/node"
	"github.com/wippyai/neuropil-go/policy"
)

// openEngine creates the configured backend. The returned close function
// releases backend resources after every node on it is shut down.
func openEngine(ctx context.Context, cfg *config.Config) (engine.Engine, func(context.Context) error, error) {
	noClose := func(context.Context) error { return nil }

	switch cfg.Backend {
	case config.BackendLoopback:
		return loopback.New(), noClose, nil

	case config.BackendWasm:
		data, err := os.ReadFile(cfg.WasmModule)
		if err != nil {
			return nil, nil, errors.Load("read "+cfg.WasmModule, err)
		}
		eng, err := wasm.New(ctx, data)
		if err != nil {
			return nil, nil, err
		}
		return eng, eng.Close, nil

	case config.BackendNative:
		eng, err := native.New()
		if err != nil {
			return nil, nil, err
		}
		return eng, noClose, nil
	}
	return nil, nil, errors.Config(fmt.Sprintf("unknown backend %q", cfg.Backend), nil)
}

// session is one node on its own engine, with the policy watcher that
// feeds it.
type session struct {
	node    *node.Node
	watcher *policy.Watcher
	log     *zap.Logger
	close   func(context.Context) error
}

type startOptions struct {
	listen bool
	extra  []node.Option
}

// start brings up a node according to a.cfg: engine, context, policy,
// listener and joins, in that order.
func (a *app) start(ctx context.Context, so startOptions) (_ *session, err error) {
	cfg := a.cfg
	eng, closeEngine, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := a.log.With(zap.String("backend", cfg.Backend))
	opts := append(cfg.NodeOptions(),
		node.WithLogger(log),
		node.WithErrorHandler(func(err error) {
			log.Warn("callback failed", zap.Error(err))
		}),
	)
	opts = append(opts, so.extra...)

	n, err := node.New(eng, opts...)
	if err != nil {
		return nil, multierr.Append(err, closeEngine(ctx))
	}
	s := &session{node: n, log: log, close: closeEngine}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.shutdown(ctx, false))
		}
	}()

	if cfg.PolicyFile != "" {
		s.watcher, err = policy.NewWatcher(cfg.PolicyFile, policy.OnReload(func(set *policy.Set, err error) {
			if err != nil {
				log.Warn("policy reload failed, keeping previous rules", zap.Error(err))
				return
			}
			log.Info("policy reloaded", zap.String("hash", set.Hash()))
		}))
		if err != nil {
			return nil, err
		}
		if err = policy.Install(n, s.watcher); err != nil {
			return nil, err
		}
		log.Info("policy installed",
			zap.String("path", cfg.PolicyFile),
			zap.String("hash", s.watcher.Current().Hash()))
	}

	if so.listen && cfg.Listen.Protocol != "" {
		if _, err = n.Listen(cfg.Listen.Protocol, cfg.Listen.Host, cfg.Listen.Port); err != nil {
			return nil, err
		}
		log.Info("listening",
			zap.String("protocol", cfg.Listen.Protocol),
			zap.String("host", cfg.Listen.Host),
			zap.Uint16("port", cfg.Listen.Port))
	}

	for _, j := range cfg.Join {
		if _, err = n.Join(j); err != nil {
			return nil, err
		}
		log.Info("joining", zap.String("connect", j))
	}
	return s, nil
}

// runFor drives the engine until ctx is done or d has passed.
func (s *session) runFor(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_, err := s.node.Run(ctx, d)
	return err
}

// shutdown tears down the node, the watcher and the engine, collecting
// every failure.
func (s *session) shutdown(ctx context.Context, graceful bool) error {
	_, err := s.node.Shutdown(graceful)
	if s.watcher != nil {
		err = multierr.Append(err, s.watcher.Close())
	}
	return multierr.Append(err, s.close(ctx))
}
