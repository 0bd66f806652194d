package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/status"
)

type statusFlags struct {
	codes bool
}

func newStatusCmd(a *app) *cobra.Command {
	var f statusFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration and context state",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if f.codes {
				return printCodes(out)
			}
			return a.status(cmd.Context(), out)
		},
	}
	cmd.Flags().BoolVar(&f.codes, "codes", false, "List the engine status codes instead")
	return cmd
}

type statusView struct {
	Backend   string          `yaml:"backend"`
	Status    string          `yaml:"status"`
	Settings  engine.Settings `yaml:"settings"`
	Handle    uint64          `yaml:"handle"`
	HasJoined bool            `yaml:"has_joined"`
}

func (a *app) status(ctx context.Context, out io.Writer) (err error) {
	s, err := a.start(ctx, startOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if serr := s.shutdown(context.Background(), false); serr != nil && err == nil {
			err = serr
		}
	}()

	n := s.node
	v := statusView{
		Backend:   a.cfg.Backend,
		Handle:    uint64(n.Handle()),
		Status:    n.Status().String(),
		HasJoined: n.HasJoined(),
		Settings:  n.Settings(),
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func printCodes(out io.Writer) error {
	for _, c := range status.Codes() {
		if _, err := fmt.Fprintf(out, "%2d  %s\n", int(c), c); err != nil {
			return err
		}
	}
	return nil
}
