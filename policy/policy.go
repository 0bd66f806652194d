// Package policy evaluates YAML allow/deny rules as node AAA policies.
//
// A policy file looks like:
//
//	default: deny
//	deny_expired: true
//	rules:
//	  - seat: authorize
//	    subject: "sensor.*"
//	    decision: allow
//	  - seat: authenticate
//	    issuer: "3f2a*"
//	    decision: allow
//
// Rules are evaluated in order and the first match wins. A rule with an
// empty seat, subject, issuer or realm matches anything in that field.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/node"
	"github.com/wippyai/neuropil-go/status"
)

const (
	Allow = "allow"
	Deny  = "deny"
)

// Rule matches tokens by glob patterns (path.Match syntax).
type Rule struct {
	Seat     string `yaml:"seat"`
	Subject  string `yaml:"subject"`
	Issuer   string `yaml:"issuer"`
	Realm    string `yaml:"realm"`
	Decision string `yaml:"decision"`
	Reason   string `yaml:"reason"`
}

// Set is a parsed policy file.
type Set struct {
	Default     string `yaml:"default"`
	Rules       []Rule `yaml:"rules"`
	DenyExpired bool   `yaml:"deny_expired"`

	hash string
}

// AllowAll is the set used when no policy file is configured.
func AllowAll() *Set {
	return &Set{Default: Allow}
}

// Parse decodes and validates a policy document.
func Parse(data []byte) (*Set, error) {
	s := AllowAll()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Config("parse policy", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	s.hash = "sha256:" + hex.EncodeToString(sum[:])
	return s, nil
}

// Load reads and parses the policy file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("read policy", err)
	}
	return Parse(data)
}

// Hash identifies the document the set was parsed from. It is empty for
// sets not built by Parse.
func (s *Set) Hash() string {
	return s.hash
}

func (s *Set) validate() error {
	if !validDecision(s.Default) {
		return errors.Config(fmt.Sprintf("default decision %q is not allow or deny", s.Default), nil)
	}
	for i, r := range s.Rules {
		if !validDecision(r.Decision) {
			return errors.Config(fmt.Sprintf("rule %d: decision %q is not allow or deny", i, r.Decision), nil)
		}
		if r.Seat != "" && r.Seat != "*" {
			if _, ok := seatByName(r.Seat); !ok {
				return errors.Config(fmt.Sprintf("rule %d: unknown seat %q", i, r.Seat), nil)
			}
		}
		for _, p := range []string{r.Subject, r.Issuer, r.Realm} {
			if _, err := path.Match(p, ""); err != nil {
				return errors.Config(fmt.Sprintf("rule %d: bad pattern %q", i, p), err)
			}
		}
	}
	return nil
}

func validDecision(d string) bool {
	return d == Allow || d == Deny
}

func seatByName(name string) (node.Seat, bool) {
	for _, s := range node.Seats() {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// Decision is the outcome of evaluating a token.
type Decision struct {
	Rule    *Rule
	Reason  string
	Allowed bool
}

// Decide evaluates tok at seat. now is used for expiry checks.
func (s *Set) Decide(seat node.Seat, tok *engine.Token, now time.Time) (Decision, error) {
	if tok == nil {
		return Decision{Reason: "no token"}, nil
	}
	if s.DenyExpired && tok.Expired(now) {
		return Decision{Reason: "token expired"}, nil
	}

	for i := range s.Rules {
		r := &s.Rules[i]
		ok, err := r.matches(seat, tok)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Rule: r, Reason: r.Reason, Allowed: r.Decision == Allow}, nil
		}
	}
	return Decision{Reason: "default", Allowed: s.Default == Allow}, nil
}

func (r *Rule) matches(seat node.Seat, tok *engine.Token) (bool, error) {
	if r.Seat != "" && r.Seat != "*" && r.Seat != seat.String() {
		return false, nil
	}
	fields := [...]struct{ pattern, value string }{
		{r.Subject, tok.Subject},
		{r.Issuer, tok.Issuer},
		{r.Realm, tok.Realm},
	}
	for _, f := range fields {
		if f.pattern == "" {
			continue
		}
		ok, err := path.Match(f.pattern, f.value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Policy returns a node policy evaluating s at seat.
func (s *Set) Policy(seat node.Seat) node.Policy {
	return func(_ *node.Node, tok *engine.Token) (bool, error) {
		d, err := s.Decide(seat, tok, time.Now())
		return d.Allowed, err
	}
}

// Source produces per-seat policies. *Set and *Watcher implement it.
type Source interface {
	Policy(seat node.Seat) node.Policy
}

// Install sets src's policies on every seat of n.
func Install(n *node.Node, src Source) error {
	for _, seat := range node.Seats() {
		code, err := n.SetPolicy(seat, src.Policy(seat))
		if err != nil {
			return err
		}
		if code != status.OK {
			return errors.Engine(errors.PhaseRegister, seat.String(), int(code), code.String())
		}
	}
	return nil
}
