package testutil

import (
	"fmt"
	"slices"

	"github.com/roach88/vdb/internal/value"
)

// Model is the context object handed to the model adapter.
type Model struct {
	Data value.Value
}

// NewModel wraps data. A nil data becomes an empty map.
func NewModel(data value.Value) *Model {
	if data == nil {
		data = value.Map{}
	}
	return &Model{Data: data}
}

type modelObserver struct {
	model *Model
	path  value.Path
	cb    func() error
}

// ModelAdapter is an observable in-memory model adapter. Writes notify every
// observer whose path is a prefix of, or is prefixed by, the written path.
// Writes that leave the stored value unchanged do not notify.
type ModelAdapter struct {
	journal   *Journal
	observers map[int]modelObserver
	nextID    int
}

// NewModelAdapter creates a model adapter recording writes into j (may be nil).
func NewModelAdapter(j *Journal) *ModelAdapter {
	return &ModelAdapter{journal: j, observers: make(map[int]modelObserver)}
}

// Kind implements value.Adapter.
func (a *ModelAdapter) Kind() value.Kind {
	return value.KindModel
}

// GetPaths returns every leaf path below path. Empty containers count as
// leaves; a missing or primitive location yields path itself.
func (a *ModelAdapter) GetPaths(ctx any, path value.Path) ([]value.Path, error) {
	m, err := asModel(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := lookup(m.Data, path)
	if !ok {
		return []value.Path{path.Clone()}, nil
	}
	var out []value.Path
	collectLeaves(node, path.Clone(), &out)
	return out, nil
}

// GetValue returns a deep copy of the value at path, or nil if absent.
func (a *ModelAdapter) GetValue(ctx any, path value.Path) (value.Value, error) {
	m, err := asModel(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := lookup(m.Data, path)
	if !ok {
		return nil, nil
	}
	return value.Clone(node), nil
}

// Set writes v at path, creating intermediate maps as needed.
func (a *ModelAdapter) Set(ctx any, path value.Path, v value.Value) error {
	m, err := asModel(ctx)
	if err != nil {
		return err
	}
	if old, ok := lookup(m.Data, path); ok && value.Equal(old, v) {
		return nil
	}
	updated, err := setAt(m.Data, path, value.Clone(v))
	if err != nil {
		return fmt.Errorf("model set %s: %w", path, err)
	}
	m.Data = updated
	a.journal.record("model", "$", path, v)

	ids := make([]int, 0, len(a.observers))
	for id := range a.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		o, ok := a.observers[id]
		if !ok || o.model != m || !related(o.path, path) {
			continue
		}
		if err := o.cb(); err != nil {
			return err
		}
	}
	return nil
}

// Observe implements value.Observable.
func (a *ModelAdapter) Observe(ctx any, path value.Path, cb func() error) int {
	m, _ := ctx.(*Model)
	a.nextID++
	a.observers[a.nextID] = modelObserver{model: m, path: path.Clone(), cb: cb}
	return a.nextID
}

// Unobserve implements value.Observable.
func (a *ModelAdapter) Unobserve(id int) {
	delete(a.observers, id)
}

// ObserverCount returns the number of live observers.
func (a *ModelAdapter) ObserverCount() int {
	return len(a.observers)
}

func asModel(ctx any) (*Model, error) {
	m, ok := ctx.(*Model)
	if !ok || m == nil {
		return nil, fmt.Errorf("model adapter needs a *testutil.Model context, got %T", ctx)
	}
	return m, nil
}

func related(a, b value.Path) bool {
	n := min(len(a), len(b))
	return a[:n].Equal(b[:n])
}

func lookup(v value.Value, path value.Path) (value.Value, bool) {
	cur := v
	for i := range path {
		switch node := cur.(type) {
		case value.Map:
			next, ok := node[path[i]]
			if !ok {
				return nil, false
			}
			cur = next
		case value.Seq:
			idx, ok := path.Index(i)
			if !ok || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func collectLeaves(v value.Value, at value.Path, out *[]value.Path) {
	switch node := v.(type) {
	case value.Seq:
		if len(node) == 0 {
			*out = append(*out, at)
			return
		}
		for i, elem := range node {
			collectLeaves(elem, append(at.Clone(), fmt.Sprint(i)), out)
		}
	case value.Map:
		if len(node) == 0 {
			*out = append(*out, at)
			return
		}
		for _, k := range node.SortedKeys() {
			collectLeaves(node[k], append(at.Clone(), k), out)
		}
	default:
		*out = append(*out, at)
	}
}

func setAt(root value.Value, path value.Path, v value.Value) (value.Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	switch node := root.(type) {
	case value.Seq:
		idx, ok := path.Index(0)
		if !ok || idx > len(node) {
			return nil, fmt.Errorf("index %q out of range", path[0])
		}
		var child value.Value
		if idx < len(node) {
			child = node[idx]
		}
		updated, err := setAt(child, path[1:], v)
		if err != nil {
			return nil, err
		}
		out := slices.Clone(node)
		if idx == len(node) {
			out = append(out, updated)
		} else {
			out[idx] = updated
		}
		return out, nil
	case value.Map:
		updated, err := setAt(node[path[0]], path[1:], v)
		if err != nil {
			return nil, err
		}
		out := make(value.Map, len(node)+1)
		for k, elem := range node {
			out[k] = elem
		}
		out[path[0]] = updated
		return out, nil
	default:
		updated, err := setAt(nil, path[1:], v)
		if err != nil {
			return nil, err
		}
		return value.Map{path[0]: updated}, nil
	}
}
