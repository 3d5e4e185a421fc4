package testutil

import (
	"fmt"
	"slices"

	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/registry"
	"github.com/roach88/vdb/internal/value"
)

// ViewField selects what part of an element a ViewAdapter reads and writes.
type ViewField int

const (
	// FieldText is the element's text content. Paths are ignored.
	FieldText ViewField = iota
	// FieldValue is the "value" attribute, like a form input.
	FieldValue
	// FieldAttr is the attribute named by path[0].
	FieldAttr
)

type viewObserver struct {
	element *dom.Node
	path    value.Path
	cb      func() error
}

// ViewAdapter is an in-memory view adapter over dom nodes. Programmatic Set
// calls do not notify observers; Input simulates a user edit and does.
type ViewAdapter struct {
	name      string
	field     ViewField
	journal   *Journal
	observers map[int]viewObserver
	nextID    int
}

// NewViewAdapter creates a view adapter named name (used in journal entries).
func NewViewAdapter(name string, field ViewField, j *Journal) *ViewAdapter {
	return &ViewAdapter{name: name, field: field, journal: j, observers: make(map[int]viewObserver)}
}

// Kind implements value.Adapter.
func (a *ViewAdapter) Kind() value.Kind {
	return value.KindView
}

// GetPaths implements value.Adapter. View reads never fan out.
func (a *ViewAdapter) GetPaths(ctx any, path value.Path) ([]value.Path, error) {
	if _, err := asElement(ctx); err != nil {
		return nil, err
	}
	return []value.Path{path.Clone()}, nil
}

// GetValue implements value.Adapter.
func (a *ViewAdapter) GetValue(ctx any, path value.Path) (value.Value, error) {
	el, err := asElement(ctx)
	if err != nil {
		return nil, err
	}
	switch a.field {
	case FieldText:
		return value.String(el.Text), nil
	case FieldValue:
		return value.String(el.Attrs["value"]), nil
	default:
		if len(path) == 0 {
			return nil, fmt.Errorf("%s: attribute name missing", a.name)
		}
		v, ok := el.Attrs[path[0]]
		if !ok {
			return nil, nil
		}
		return value.String(v), nil
	}
}

// Set implements value.Adapter.
func (a *ViewAdapter) Set(ctx any, path value.Path, v value.Value) error {
	el, err := asElement(ctx)
	if err != nil {
		return err
	}
	if err := a.write(el, path, v); err != nil {
		return err
	}
	a.journal.record(a.name, el.Label(), path, v)
	return nil
}

// Input writes v as if a user edited the element, then notifies observers
// of that element.
func (a *ViewAdapter) Input(el *dom.Node, path value.Path, v value.Value) error {
	if err := a.write(el, path, v); err != nil {
		return err
	}

	ids := make([]int, 0, len(a.observers))
	for id := range a.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		o, ok := a.observers[id]
		if !ok || o.element != el || !related(o.path, path) {
			continue
		}
		if err := o.cb(); err != nil {
			return err
		}
	}
	return nil
}

func (a *ViewAdapter) write(el *dom.Node, path value.Path, v value.Value) error {
	text := value.Text(v)
	switch a.field {
	case FieldText:
		el.Text = text
	case FieldValue:
		if el.Attrs == nil {
			el.Attrs = map[string]string{}
		}
		el.Attrs["value"] = text
	default:
		if len(path) == 0 {
			return fmt.Errorf("%s: attribute name missing", a.name)
		}
		if el.Attrs == nil {
			el.Attrs = map[string]string{}
		}
		el.Attrs[path[0]] = text
	}
	return nil
}

// Observe implements value.Observable.
func (a *ViewAdapter) Observe(ctx any, path value.Path, cb func() error) int {
	el, _ := ctx.(*dom.Node)
	a.nextID++
	a.observers[a.nextID] = viewObserver{element: el, path: path.Clone(), cb: cb}
	return a.nextID
}

// Unobserve implements value.Observable.
func (a *ViewAdapter) Unobserve(id int) {
	delete(a.observers, id)
}

// ObserverCount returns the number of live observers.
func (a *ViewAdapter) ObserverCount() int {
	return len(a.observers)
}

func asElement(ctx any) (*dom.Node, error) {
	el, ok := ctx.(*dom.Node)
	if !ok || el == nil {
		return nil, fmt.Errorf("view adapter needs a *dom.Node context, got %T", ctx)
	}
	return el, nil
}

// Env bundles a registry with the in-memory adapters registered under their
// conventional names: "$" for the model and "text", "value", "attr" for the
// view.
type Env struct {
	Registry *registry.Registry
	Journal  *Journal
	Model    *Model
	ModelAd  *ModelAdapter
	Text     *ViewAdapter
	Value    *ViewAdapter
	Attr     *ViewAdapter
}

// NewEnv builds an Env around data.
func NewEnv(data value.Value) *Env {
	j := NewJournal(nil)
	e := &Env{
		Registry: registry.New(),
		Journal:  j,
		Model:    NewModel(data),
		ModelAd:  NewModelAdapter(j),
		Text:     NewViewAdapter("text", FieldText, j),
		Value:    NewViewAdapter("value", FieldValue, j),
		Attr:     NewViewAdapter("attr", FieldAttr, j),
	}
	mustRegister(e.Registry.RegisterAdapter("$", e.ModelAd))
	mustRegister(e.Registry.RegisterAdapter("text", e.Text))
	mustRegister(e.Registry.RegisterAdapter("value", e.Value))
	mustRegister(e.Registry.RegisterAdapter("attr", e.Attr))
	return e
}

// ViewAdapter returns the view adapter registered under name.
func (e *Env) ViewAdapter(name string) (*ViewAdapter, bool) {
	switch name {
	case "text":
		return e.Text, true
	case "value":
		return e.Value, true
	case "attr":
		return e.Attr, true
	default:
		return nil, false
	}
}

// AdapterObservers sums live observers across all adapters of the env.
func (e *Env) AdapterObservers() int {
	return e.ModelAd.ObserverCount() + e.Text.ObserverCount() + e.Value.ObserverCount() + e.Attr.ObserverCount()
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
