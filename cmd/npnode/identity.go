package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/neuropil-go/engine"
)

type identityFlags struct {
	secretKey string
	expires   time.Duration
	use       bool
}

func newIdentityCmd(a *app) *cobra.Command {
	var f identityFlags
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Create an identity token",
		Long:  "Asks the engine for a new identity and prints the token as YAML.\nWith --use the token is also installed on the node, which runs it through\nthe authorize policy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.identity(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().DurationVar(&f.expires, "expires", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&f.secretKey, "secret-key", "", "Hex encoded secret key; generated when empty")
	cmd.Flags().BoolVar(&f.use, "use", false, "Use the identity on the node")
	return cmd
}

// tokenView is the printed form of a token.
type tokenView struct {
	UUID       string            `yaml:"uuid"`
	Subject    string            `yaml:"subject,omitempty"`
	Issuer     string            `yaml:"issuer,omitempty"`
	Realm      string            `yaml:"realm,omitempty"`
	Audience   string            `yaml:"audience,omitempty"`
	IssuedAt   string            `yaml:"issued_at,omitempty"`
	NotBefore  string            `yaml:"not_before,omitempty"`
	ExpiresAt  string            `yaml:"expires_at,omitempty"`
	PublicKey  string            `yaml:"public_key"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

func viewToken(tok engine.Token) tokenView {
	stamp := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	return tokenView{
		UUID:       tok.UUID,
		Subject:    tok.Subject,
		Issuer:     tok.Issuer,
		Realm:      tok.Realm,
		Audience:   tok.Audience,
		IssuedAt:   stamp(tok.IssuedAt),
		NotBefore:  stamp(tok.NotBefore),
		ExpiresAt:  stamp(tok.ExpiresAt),
		PublicKey:  hex.EncodeToString(tok.PublicKey),
		Attributes: tok.Attributes,
	}
}

func (a *app) identity(ctx context.Context, out io.Writer, f identityFlags) (err error) {
	var key []byte
	if f.secretKey != "" {
		if key, err = hex.DecodeString(f.secretKey); err != nil {
			return fmt.Errorf("secret key: %w", err)
		}
	}

	s, err := a.start(ctx, startOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if serr := s.shutdown(context.Background(), false); serr != nil && err == nil {
			err = serr
		}
	}()

	tok, _, err := s.node.NewIdentity(time.Now().Add(f.expires), key)
	if err != nil {
		return err
	}
	if f.use {
		if _, err := s.node.UseIdentity(tok); err != nil {
			return err
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(viewToken(tok)); err != nil {
		return err
	}
	return enc.Close()
}
