package value

import (
	"fmt"
	"math"
)

// Equal reports deep value equality. Seq and Map compare structurally,
// references compare by identity, primitives compare by value. Int and
// Float holding the same number are equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv)))
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case Seq:
		bv, ok := b.(Seq)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !Equal(elem, other) {
				return false
			}
		}
		return true
	case *Ref:
		bv, ok := b.(*Ref)
		return ok && av == bv
	default:
		return false
	}
}

// Clone returns a deep copy of v. Embedded references are cloned so their
// paths can be mutated independently.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Seq:
		out := make(Seq, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Map:
		out := make(Map, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case *Ref:
		return val.Clone()
	default:
		return v
	}
}

// Plain dereferences every *Ref leaf in v, recursively, returning a tree of
// plain values.
func Plain(v Value) (Value, error) {
	switch val := v.(type) {
	case *Ref:
		resolved, err := val.GetValue()
		if err != nil {
			return nil, fmt.Errorf("dereference %s: %w", val, err)
		}
		if IsRef(resolved) {
			return nil, fmt.Errorf("dereference %s: adapter returned a reference", val)
		}
		return Plain(resolved)
	case Seq:
		out := make(Seq, len(val))
		for i, elem := range val {
			p, err := Plain(elem)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case Map:
		out := make(Map, len(val))
		for _, k := range val.SortedKeys() {
			p, err := Plain(val[k])
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	default:
		return v, nil
	}
}

// ContainsOnlyRefs reports whether every leaf of v is a reference of kind k.
// A primitive is never a match; an empty container trivially is.
func ContainsOnlyRefs(k Kind, v Value) bool {
	switch val := v.(type) {
	case *Ref:
		return val.Kind() == k
	case Seq:
		for _, elem := range val {
			if !ContainsOnlyRefs(k, elem) {
				return false
			}
		}
		return true
	case Map:
		for _, elem := range val {
			if !ContainsOnlyRefs(k, elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Refs returns every *Ref leaf of v in depth-first order. Map children are
// visited in sorted key order.
func Refs(v Value) []*Ref {
	var out []*Ref
	walkRefs(v, func(r *Ref) { out = append(out, r) })
	return out
}

func walkRefs(v Value, fn func(*Ref)) {
	switch val := v.(type) {
	case *Ref:
		fn(val)
	case Seq:
		for _, elem := range val {
			walkRefs(elem, fn)
		}
	case Map:
		for _, k := range val.SortedKeys() {
			walkRefs(val[k], fn)
		}
	}
}
