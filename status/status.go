// Package status translates engine status codes into outcomes and errors.
package status

import (
	"strconv"

	"github.com/wippyai/neuropil-go/errors"
)

// Code is a status code returned by engine calls.
type Code int

const (
	OK Code = iota
	UnknownError
	NotImplemented
	NetworkError
	InvalidArgument
	InvalidOperation
	Startup
	KeyNotFound
)

// text is the engine's fixed code to message table.
var text = [...]string{
	OK:               "",
	UnknownError:     "unknown error",
	NotImplemented:   "operation is not implemented",
	NetworkError:     "could not init network",
	InvalidArgument:  "argument is invalid",
	InvalidOperation: "operation is currently invalid",
	Startup:          "startup error. See log for more details",
	KeyNotFound:      "key not found",
}

// Codes returns every code in the table, OK first.
func Codes() []Code {
	codes := make([]Code, len(text))
	for i := range text {
		codes[i] = Code(i)
	}
	return codes
}

// Text returns the engine message for c. Codes outside the table map to
// the unknown error text with the numeric value appended.
func Text(c Code) string {
	if c >= 0 && int(c) < len(text) {
		return text[c]
	}
	return text[UnknownError] + " (" + strconv.Itoa(int(c)) + ")"
}

func (c Code) String() string {
	if c == OK {
		return "ok"
	}
	return Text(c)
}

// OK reports whether c is the success code.
func (c Code) OK() bool { return c == OK }

// Outcome is the translated result of an engine call.
type Outcome struct {
	Message string
	Code    Code
}

// Translate maps an engine status code to an Outcome.
func Translate(c Code) Outcome {
	if c == OK {
		return Outcome{Code: OK}
	}
	return Outcome{Code: c, Message: Text(c)}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Code == OK }

// Err returns nil for a success outcome and a structured engine error otherwise.
func (o Outcome) Err(phase errors.Phase, op string) error {
	if o.Code == OK {
		return nil
	}
	return errors.Engine(phase, op, int(o.Code), o.Message)
}
