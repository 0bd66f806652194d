package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type sendFlags struct {
	linger time.Duration
	count  int
	listen bool
}

func newSendCmd(a *app) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send SUBJECT [PAYLOAD]",
		Short: "Send a message on a subject",
		Long:  "Brings up a short-lived node, joins the configured peers, sends PAYLOAD\n--count times and keeps the engine running for --linger so the messages leave.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload string
			if len(args) == 2 {
				payload = args[1]
			}
			return a.send(cmd.Context(), args[0], []byte(payload), f)
		},
	}
	cmd.Flags().DurationVar(&f.linger, "linger", 2*time.Second, "How long to keep running after sending")
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "Number of copies to send")
	cmd.Flags().BoolVar(&f.listen, "listen", false, "Listen on the configured address while sending")
	return cmd
}

func (a *app) send(ctx context.Context, subject string, payload []byte, f sendFlags) (err error) {
	if f.count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	s, err := a.start(ctx, startOptions{listen: f.listen})
	if err != nil {
		return err
	}
	defer func() {
		if serr := s.shutdown(context.Background(), true); serr != nil && err == nil {
			err = serr
		}
	}()

	for i := 0; i < f.count; i++ {
		if _, err := s.node.Send(subject, payload); err != nil {
			return err
		}
	}
	s.log.Info("sent", zap.String("subject", subject), zap.Int("count", f.count), zap.Int("bytes", len(payload)))

	if f.linger > 0 {
		return s.runFor(ctx, f.linger)
	}
	return nil
}
