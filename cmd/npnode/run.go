package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/node"
)

type runFlags struct {
	subscribe   []string
	interactive bool
	graceful    bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node until interrupted",
		Long:  "Creates a context, listens, joins the configured peers and drives the engine\nuntil SIGINT or SIGTERM. Messages on --subscribe subjects are logged.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringSliceVarP(&f.subscribe, "subscribe", "s", nil, "Subjects to subscribe to, repeatable")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "Show a live dashboard")
	cmd.Flags().BoolVar(&f.graceful, "graceful", true, "Leave the network cleanly on shutdown")
	return cmd
}

func (a *app) run(ctx context.Context, f runFlags) (err error) {
	if f.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal on stdout")
		}
		if a.logOutput == "stderr" {
			a.setLogger(zap.NewNop())
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := a.start(ctx, startOptions{listen: true})
	if err != nil {
		return err
	}
	defer func() {
		if serr := s.shutdown(context.Background(), f.graceful); serr != nil && err == nil {
			err = serr
		}
	}()

	var feed chan inbound
	if f.interactive {
		feed = make(chan inbound, 64)
	}
	for _, subject := range f.subscribe {
		if _, err := s.node.Subscribe(subject, a.logMessage(feed)); err != nil {
			return err
		}
	}

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Run(ctx); err != nil {
				s.log.Warn("policy watcher stopped", zap.Error(err))
			}
		}()
	}

	if !f.interactive {
		return a.loop(ctx, s)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.loop(ctx, s) }()

	if err := runDashboard(ctx, s.node, feed); err != nil {
		return err
	}
	cancel()
	return <-done
}

// loop drives the engine one interval at a time until ctx is done.
func (a *app) loop(ctx context.Context, s *session) error {
	for ctx.Err() == nil {
		if _, err := s.node.Run(ctx, a.cfg.RunInterval); err != nil {
			return err
		}
	}
	s.log.Info("stopping", zap.Stringer("status", s.node.Status()))
	return nil
}

// logMessage returns a handler that logs every message and, when feed is
// non-nil, forwards it to the dashboard without blocking delivery.
func (a *app) logMessage(feed chan<- inbound) node.Handler {
	return func(n *node.Node, msg *engine.Message) error {
		a.log.Info("message",
			zap.String("subject", msg.Subject),
			zap.String("uuid", msg.UUID),
			zap.Stringer("from", msg.From),
			zap.Int("bytes", len(msg.Data)))
		if feed != nil {
			select {
			case feed <- inbound{subject: msg.Subject, data: string(msg.Data), at: msg.ReceivedAt}:
			default:
			}
		}
		return nil
	}
}
