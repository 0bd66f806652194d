//go:build !neuropil || !cgo

package native

import (
	"testing"

	"github.com/wippyai/neuropil-go/errors"
)

func TestNew_Unsupported(t *testing.T) {
	if Available {
		t.Fatal("Available should be false without the neuropil tag")
	}
	eng, err := New()
	if eng != nil {
		t.Errorf("New() engine = %v, want nil", eng)
	}
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("New() error = %v, want unsupported", err)
	}
}
