// Package connector defines the transform stages a binding runs between
// its source and its sink.
package connector

import (
	"errors"
	"strings"

	"github.com/roach88/vdb/internal/value"
)

// ErrAbort is returned by a connector to discard the current transfer. The
// sink is not written. It may be wrapped.
var ErrAbort = errors.New("propagation aborted")

// Connector transforms a value on its way from source to sink.
type Connector interface {
	Process(v value.Value) (value.Value, error)
}

// Func adapts an ordinary function to the Connector interface.
type Func func(v value.Value) (value.Value, error)

// Process calls f(v).
func (f Func) Process(v value.Value) (value.Value, error) {
	return f(v)
}

// IsAbort reports whether err carries ErrAbort.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAbort)
}

// Trim dereferences a reference input, renders it as text and trims
// surrounding whitespace.
type Trim struct{}

// Process implements Connector.
func (Trim) Process(v value.Value) (value.Value, error) {
	if ref, ok := v.(*value.Ref); ok {
		resolved, err := ref.GetValue()
		if err != nil {
			return nil, err
		}
		v = resolved
	}
	return value.String(strings.TrimSpace(value.Text(v))), nil
}
