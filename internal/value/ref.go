package value

import (
	"fmt"
)

// Ref is a lazy handle into an adapter-addressed location.
//
// A Ref owns its adapter and path, plus either a view element or a model
// object, never both. All reads, writes and observations are delegated to
// the adapter with that context.
type Ref struct {
	adapter Adapter
	path    Path
	element any
	model   any
}

func (*Ref) value() {}

// NewRef creates a reference for adapter a at path. The context is stored
// as the element for view adapters and as the model for model adapters.
// Returns *UnknownKindError for any other adapter kind.
func NewRef(a Adapter, ctx any, path Path) (*Ref, error) {
	r := &Ref{adapter: a, path: path.Clone()}
	switch a.Kind() {
	case KindView:
		r.element = ctx
	case KindModel:
		r.model = ctx
	default:
		return nil, &UnknownKindError{Kind: a.Kind()}
	}
	return r, nil
}

// Kind returns the adapter kind. Two references are of the same type iff
// their kinds match.
func (r *Ref) Kind() Kind {
	return r.adapter.Kind()
}

// Adapter returns the adapter this reference delegates to.
func (r *Ref) Adapter() Adapter {
	return r.adapter
}

// Path returns a copy of the referenced path.
func (r *Ref) Path() Path {
	return r.path.Clone()
}

// Element returns the view element, or nil for model references.
func (r *Ref) Element() any {
	return r.element
}

// Model returns the model object, or nil for view references.
func (r *Ref) Model() any {
	return r.model
}

func (r *Ref) context() (any, error) {
	switch r.adapter.Kind() {
	case KindView:
		return r.element, nil
	case KindModel:
		return r.model, nil
	default:
		return nil, &UnknownKindError{Kind: r.adapter.Kind()}
	}
}

// GetValue reads the referenced location.
func (r *Ref) GetValue() (Value, error) {
	ctx, err := r.context()
	if err != nil {
		return nil, err
	}
	return r.adapter.GetValue(ctx, r.path)
}

// Set writes v into the referenced location.
func (r *Ref) Set(v Value) error {
	ctx, err := r.context()
	if err != nil {
		return err
	}
	return r.adapter.Set(ctx, r.path, v)
}

// Observe registers cb for changes at the referenced location.
func (r *Ref) Observe(cb func() error) (int, error) {
	ctx, err := r.context()
	if err != nil {
		return 0, err
	}
	obs, ok := r.adapter.(Observable)
	if !ok {
		return 0, fmt.Errorf("observe %s: %w", r.path, ErrNotObservable)
	}
	return obs.Observe(ctx, r.path, cb), nil
}

// Unobserve removes an observer previously returned by Observe.
func (r *Ref) Unobserve(id int) {
	if obs, ok := r.adapter.(Observable); ok {
		obs.Unobserve(id)
	}
}

// Clone returns a reference to the same location with an independently
// mutable path.
func (r *Ref) Clone() *Ref {
	c := *r
	c.path = r.path.Clone()
	return &c
}

// WithPath returns a clone pointing at path.
func (r *Ref) WithPath(path Path) *Ref {
	c := r.Clone()
	c.path = path.Clone()
	return c
}

func (r *Ref) String() string {
	return fmt.Sprintf("%s:%s", r.adapter.Kind(), r.path)
}
