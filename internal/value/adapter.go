package value

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies which side of the binding an endpoint lives on.
type Kind string

const (
	// KindScope is the engine's own scratch scope. Adapters never report it.
	KindScope Kind = "scope"

	// KindView is an adapter addressing a view element.
	KindView Kind = "view"

	// KindModel is an adapter addressing the bound model object.
	KindModel Kind = "model"
)

// ErrUnknownAdapter is returned whenever an adapter reports a Kind outside
// {view, model}.
var ErrUnknownAdapter = errors.New("unknown adapter type")

// ErrNotObservable is returned when observation is requested from an
// adapter that does not implement Observable.
var ErrNotObservable = errors.New("adapter does not implement observe")

// UnknownKindError carries the offending kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownAdapter, string(e.Kind))
}

func (e *UnknownKindError) Unwrap() error {
	return ErrUnknownAdapter
}

// CheckAdapterKind returns an *UnknownKindError unless k is view or model.
func CheckAdapterKind(k Kind) error {
	switch k {
	case KindView, KindModel:
		return nil
	default:
		return &UnknownKindError{Kind: k}
	}
}

// Path is an ordered sequence of path segments. Numeric segments are kept
// as decimal strings.
type Path []string

// Clone returns a copy that does not alias p's storage.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return slices.Clone(p)
}

// Equal reports whether p and other hold the same segments.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// Index parses segment i as a non-negative integer.
func (p Path) Index(i int) (int, bool) {
	if i < 0 || i >= len(p) {
		return 0, false
	}
	n, err := strconv.Atoi(p[i])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Adapter is the capability set every view or model endpoint exposes.
//
// The ctx argument is the view element for view adapters and the model
// object for model adapters; adapters treat it as opaque.
type Adapter interface {
	// Kind reports KindView or KindModel.
	Kind() Kind

	// GetPaths returns the concrete paths matched below path, in order.
	// A result longer than path means the read fanned out into a sub-tree.
	GetPaths(ctx any, path Path) ([]Path, error)

	// GetValue reads the value at path.
	GetValue(ctx any, path Path) (Value, error)

	// Set writes v at path.
	Set(ctx any, path Path, v Value) error
}

// Observable is implemented by adapters that can be used as a binding
// source. Callbacks run synchronously inside the adapter's write and their
// errors must be returned from that write.
type Observable interface {
	Observe(ctx any, path Path, cb func() error) int
	Unobserve(id int)
}
