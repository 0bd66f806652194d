package engine

import (
	"context"
	"time"

	"github.com/wippyai/neuropil-go/status"
)

// ReceiveFunc is the subject delivery trampoline. The return value reports
// delivery to the engine.
type ReceiveFunc func(h Handle, msg *Message) bool

// AAAFunc is an authenticate, authorize or accounting trampoline. The
// return value is the engine's admit/deny decision.
type AAAFunc func(h Handle, token *Token) bool

// Engine is the outbound surface of a neuropil engine.
// Implementations must be safe for concurrent use across handles.
type Engine interface {
	// DefaultSettings returns the engine's default context settings.
	DefaultSettings() (Settings, status.Code)

	// NewContext creates a context. A zero handle means failure.
	NewContext(s Settings) (Handle, status.Code)

	// Destroy tears the context down. The handle is invalid afterwards.
	Destroy(h Handle, graceful bool) status.Code

	Listen(h Handle, protocol, host string, port uint16) status.Code
	Join(h Handle, connect string) status.Code

	// Run processes engine work for up to interval.
	Run(ctx context.Context, h Handle, interval time.Duration) status.Code

	Send(h Handle, subject string, data []byte) status.Code

	NewIdentity(h Handle, expiresAt time.Time, secretKey []byte) (Token, status.Code)
	UseIdentity(h Handle, identity Token) status.Code

	MxProperties(h Handle, subject string) (MxProperties, status.Code)
	SetMxProperties(h Handle, subject string, p MxProperties) status.Code

	HasJoined(h Handle) bool
	Status(h Handle) ContextStatus

	// AddReceiveCallback installs fn as the delivery trampoline for subject.
	AddReceiveCallback(h Handle, subject string, fn ReceiveFunc) status.Code

	SetAuthenticateCallback(h Handle, fn AAAFunc) status.Code
	SetAuthorizeCallback(h Handle, fn AAAFunc) status.Code
	SetAccountingCallback(h Handle, fn AAAFunc) status.Code

	// StatusText returns the engine's message for c.
	StatusText(c status.Code) string
}
