//go:build !neuropil || !cgo

package native

import (
	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
)

// Available reports whether the binary was built with the native backend.
const Available = false

// New reports that the native backend is not compiled in.
func New() (engine.Engine, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native engine requires cgo and the neuropil build tag")
}
