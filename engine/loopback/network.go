package loopback

import (
	"encoding/hex"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
)

// DefaultPort is used when Listen is called with port 0.
const DefaultPort = 3141

var protocols = map[string]string{
	"tcp":  "tcp4",
	"tcp4": "tcp4",
	"tcp6": "tcp6",
	"udp":  "udp4",
	"udp4": "udp4",
	"udp6": "udp6",
	"pas4": "pas4",
	"pas6": "pas6",
}

// address normalizes a listen triple into the network's address key.
func address(protocol, host string, port uint16) (string, bool) {
	p, ok := protocols[strings.ToLower(protocol)]
	if !ok {
		return "", false
	}
	if port == 0 {
		port = DefaultPort
	}
	return p + ":" + normalizeHost(host) + ":" + strconv.Itoa(int(port)), true
}

func normalizeHost(host string) string {
	switch host {
	case "", "*", "0.0.0.0", "::", "127.0.0.1", "::1":
		return "localhost"
	}
	return strings.ToLower(host)
}

// parseConnect parses "<fingerprint|*>:<protocol>:<host>:<port>".
func parseConnect(s string) (string, bool) {
	fp, rest, ok := strings.Cut(s, ":")
	if !ok || !validFingerprint(fp) {
		return "", false
	}
	proto, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", false
	}
	port, err := strconv.ParseUint(rest[i+1:], 10, 16)
	if err != nil {
		return "", false
	}
	return address(proto, rest[:i], uint16(port))
}

func validFingerprint(fp string) bool {
	if fp == "*" {
		return true
	}
	if len(fp) != 64 {
		return false
	}
	_, err := hex.DecodeString(fp)
	return err == nil
}

// handshake joins h to the context listening on addr. Both sides'
// authenticate trampolines must admit the other's identity.
func (e *Engine) handshake(h engine.Handle, addr string) {
	e.mu.Lock()
	c, ok := e.contexts[h]
	target, found := e.listeners[addr]
	if !ok || !found || target == c {
		e.mu.Unlock()
		e.log.Debug("join target unreachable",
			zap.Uint64("handle", uint64(h)),
			zap.String("address", addr))
		return
	}
	if _, joined := c.peers[target.handle]; joined {
		e.mu.Unlock()
		return
	}
	ours, theirs := c.identity, target.identity
	ourAuthn, theirAuthn := c.authn, target.authn
	e.mu.Unlock()

	if !e.admit(c, ourAuthn, &theirs) {
		e.log.Debug("peer not authenticated", zap.Uint64("handle", uint64(h)), zap.String("address", addr))
		return
	}
	if !e.admit(target, theirAuthn, &ours) {
		e.log.Debug("rejected by peer", zap.Uint64("handle", uint64(h)), zap.String("address", addr))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.contexts[h] != c || e.contexts[target.handle] != target {
		return
	}
	c.peers[target.handle] = target
	target.peers[h] = c
	if c.status == engine.StatusUninitialized {
		c.status = engine.StatusRunning
	}
}

func (e *Engine) deliver(h engine.Handle, msg *engine.Message) bool {
	e.mu.Lock()
	c, ok := e.contexts[h]
	var fn engine.ReceiveFunc
	if ok {
		fn = c.receive[msg.Subject]
	}
	e.mu.Unlock()

	if fn == nil {
		e.log.Debug("no receiver for subject",
			zap.Uint64("handle", uint64(h)),
			zap.String("subject", msg.Subject))
		return false
	}
	var delivered bool
	e.callback(c, func() { delivered = fn(h, msg) })
	return delivered
}
