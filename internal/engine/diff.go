package engine

import (
	"math"

	"github.com/roach88/vdb/internal/value"
)

// OpKind is the kind of an edit operation.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
)

// Op is one step of an edit script. Keys are valid against the collection
// as mutated by every previous op of the same script.
//
// For sequences Key and AfterKey are value.Int indexes; AfterKey -1 means
// insert at the front. For maps they are value.String keys and AfterKey is
// nil for the first added key.
type Op struct {
	Kind     OpKind
	Key      value.Value
	AfterKey value.Value
	Value    value.Value
}

// Diff returns the edit script turning old into new. Two sequences are
// aligned by minimum edit distance; anything else is diffed by key.
func Diff(old, new value.Value) []Op {
	return diff(old, new, new)
}

// diff compares old with plain and takes op values from raw, which has the
// same shape as plain but may still hold references.
func diff(old, plain, raw value.Value) []Op {
	oldSeq, oldIsSeq := old.(value.Seq)
	newSeq, newIsSeq := plain.(value.Seq)
	if oldIsSeq && newIsSeq {
		rawSeq, _ := raw.(value.Seq)
		return levenshtein(oldSeq, newSeq, rawSeq)
	}
	return keyedDiff(asKeyed(old), asKeyed(plain), asKeyed(raw))
}

type keyed struct {
	keys   []string
	values map[string]value.Value
	seq    bool
}

func asKeyed(v value.Value) keyed {
	k := keyed{values: make(map[string]value.Value)}
	switch c := v.(type) {
	case value.Seq:
		k.seq = true
		for i, elem := range c {
			key := value.Text(value.Int(i))
			k.keys = append(k.keys, key)
			k.values[key] = elem
		}
	case value.Map:
		k.keys = c.SortedKeys()
		for key, elem := range c {
			k.values[key] = elem
		}
	}
	return k
}

func (k keyed) key(s string) value.Value {
	if k.seq {
		for i, key := range k.keys {
			if key == s {
				return value.Int(i)
			}
		}
	}
	return value.String(s)
}

// keyedDiff emits removals, then replacements, then additions. Each
// addition is placed after the previously added key.
func keyedDiff(old, plain, raw keyed) []Op {
	var ops []Op
	for _, k := range old.keys {
		if _, ok := plain.values[k]; !ok {
			ops = append(ops, Op{Kind: OpRemove, Key: old.key(k)})
		}
	}
	for _, k := range plain.keys {
		prev, ok := old.values[k]
		if ok && !value.Equal(prev, plain.values[k]) {
			ops = append(ops, Op{Kind: OpReplace, Key: plain.key(k), Value: raw.values[k]})
		}
	}
	var after value.Value
	for _, k := range plain.keys {
		if _, ok := old.values[k]; ok {
			continue
		}
		key := plain.key(k)
		ops = append(ops, Op{Kind: OpAdd, Key: key, AfterKey: after, Value: raw.values[k]})
		after = key
	}
	return ops
}

// levenshtein computes a minimum edit script between two sequences. The
// backtrack prefers the diagonal on ties, then removal over addition.
func levenshtein(old, plain, raw value.Seq) []Op {
	if raw == nil {
		raw = plain
	}
	rows, cols := len(plain), len(old)

	m := make([][]int, rows+1)
	for x := range m {
		m[x] = make([]int, cols+1)
		m[x][0] = x
	}
	for y := 0; y <= cols; y++ {
		m[0][y] = y
	}
	for x := 1; x <= rows; x++ {
		for y := 1; y <= cols; y++ {
			cost := 1
			if value.Equal(plain[x-1], old[y-1]) {
				cost = 0
			}
			m[x][y] = min(m[x-1][y-1]+cost, m[x-1][y]+1, m[x][y-1]+1)
		}
	}

	const far = math.MaxInt / 2
	at := func(x, y int) int {
		if x < 0 || y < 0 {
			return far
		}
		return m[x][y]
	}

	type step struct {
		kind     OpKind
		key      int
		afterKey int
		value    value.Value
	}
	var steps []step
	x, y := rows, cols
	for x > 0 || y > 0 {
		cur := m[x][y]
		diag, h, v := at(x-1, y-1), at(x, y-1), at(x-1, y)
		switch {
		case diag <= min(h, v):
			x--
			y--
			if diag+1 == cur {
				steps = append(steps, step{kind: OpReplace, key: y, value: raw[x]})
			}
		case h+1 == cur:
			y--
			steps = append(steps, step{kind: OpRemove, key: y})
		default:
			x--
			steps = append(steps, step{kind: OpAdd, afterKey: y - 1, value: raw[x]})
		}
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	for i, s := range steps {
		for j := i + 1; j < len(steps); j++ {
			later := &steps[j]
			switch s.kind {
			case OpAdd:
				if later.kind == OpAdd {
					if later.afterKey >= s.afterKey {
						later.afterKey++
					}
				} else if later.key >= s.afterKey+1 {
					later.key++
				}
			case OpRemove:
				if later.kind == OpAdd {
					if later.afterKey >= s.key {
						later.afterKey--
					}
				} else if later.key >= s.key {
					later.key--
				}
			}
		}
	}

	ops := make([]Op, len(steps))
	for i, s := range steps {
		switch s.kind {
		case OpAdd:
			ops[i] = Op{Kind: OpAdd, Key: value.Int(s.afterKey + 1), AfterKey: value.Int(s.afterKey), Value: s.value}
		case OpRemove:
			ops[i] = Op{Kind: OpRemove, Key: value.Int(s.key)}
		default:
			ops[i] = Op{Kind: OpReplace, Key: value.Int(s.key), Value: s.value}
		}
	}
	return ops
}

// Apply runs ops against a copy of v and returns the result. It is the
// reference semantics of an edit script.
func Apply(v value.Value, ops []Op) (value.Value, error) {
	switch c := v.(type) {
	case value.Seq:
		out := append(value.Seq(nil), c...)
		for _, op := range ops {
			k, ok := op.Key.(value.Int)
			if !ok {
				return nil, internalError("sequence op with key %v", op.Key)
			}
			i := int(k)
			switch op.Kind {
			case OpAdd:
				if i < 0 || i > len(out) {
					return nil, lookupError(value.Text(op.Key), "add at %d beyond length %d", i, len(out))
				}
				out = append(out[:i], append(value.Seq{op.Value}, out[i:]...)...)
			case OpRemove, OpReplace:
				if i < 0 || i >= len(out) {
					return nil, lookupError(value.Text(op.Key), "no element at %d", i)
				}
				if op.Kind == OpRemove {
					out = append(out[:i], out[i+1:]...)
				} else {
					out[i] = op.Value
				}
			}
		}
		return out, nil
	case value.Map:
		out := make(value.Map, len(c))
		for k, elem := range c {
			out[k] = elem
		}
		for _, op := range ops {
			k := value.Text(op.Key)
			if op.Kind == OpRemove {
				delete(out, k)
			} else {
				out[k] = op.Value
			}
		}
		return out, nil
	case nil:
		if len(ops) == 0 {
			return nil, nil
		}
		return Apply(value.Seq{}, ops)
	default:
		return nil, internalError("cannot apply edit script to %T", v)
	}
}
