package engine

import (
	"fmt"
	"strconv"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/connector"
	"github.com/roach88/vdb/internal/value"
)

// wire is one observer registered for a descriptor's source.
type wire struct {
	desc    *Descriptor
	adapter value.Observable // nil for scope sources
	id      int
}

// bootstrapOrder is the fixed priority of the initial propagation pass.
var bootstrapOrder = []value.Kind{value.KindModel, value.KindScope, value.KindView}

// wireInstance observes the source of every binding in the instance's scope
// tree and runs the bootstrap pass scope by scope.
func (b *Binding) wireInstance(inst *instance) error {
	for _, sc := range inst.spec.All() {
		if err := b.wireScope(inst, sc); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binding) wireScope(inst *instance, sc *ast.Scope) error {
	descs := make([]*Descriptor, 0, len(sc.Bindings))
	for _, decl := range sc.Bindings {
		d, err := b.describe(decl, sc.Element)
		if err != nil {
			return err
		}
		w, err := b.observeSource(d)
		if err != nil {
			return err
		}
		inst.wiring = append(inst.wiring, w)
		descs = append(descs, d)
	}

	for _, kind := range bootstrapOrder {
		for _, d := range descs {
			if d.Source.Kind != kind {
				continue
			}
			if err := b.propagate(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Binding) observeSource(d *Descriptor) (wire, error) {
	cb := func() error { return b.trigger(d) }

	if d.Source.Kind == value.KindScope {
		id := b.store.Observe(d.Source.Path[0], cb)
		return wire{desc: d, id: id}, nil
	}

	obs, ok := d.Source.Adapter.(value.Observable)
	if !ok {
		return wire{}, NewCapabilityError(d.Source.Name)
	}
	ctx, err := b.context(d, d.Source)
	if err != nil {
		return wire{}, err
	}
	id := obs.Observe(ctx, d.Source.Path, cb)
	b.logger.Debug("source observed", "source", d.Source.String(), "observer", id)
	return wire{desc: d, adapter: obs, id: id}, nil
}

// unwireInstance removes every observer wireInstance registered.
func (b *Binding) unwireInstance(inst *instance) {
	for _, w := range inst.wiring {
		if w.adapter == nil {
			b.store.Unobserve(w.id)
		} else {
			w.adapter.Unobserve(w.id)
		}
		b.queue.Forget(w.desc)
		w.desc.retired = true
	}
	inst.wiring = nil
}

// trigger runs d now, or queues it while the binding is paused.
func (b *Binding) trigger(d *Descriptor) error {
	if b.paused {
		b.queue.Enqueue(d)
		return nil
	}
	return b.propagate(d)
}

// propagate transfers the current source value of d to its sink.
func (b *Binding) propagate(d *Descriptor) error {
	if err := b.depth.Enter(d.Binding.String()); err != nil {
		return err
	}
	defer b.depth.Leave()

	v, err := b.readSource(d)
	if err != nil {
		return fmt.Errorf("propagate %s: %w", d.Binding, err)
	}

	for _, c := range d.Connectors {
		v, err = c.Process(v)
		if connector.IsAbort(err) {
			b.logger.Debug("propagation aborted", "binding", d.Binding.String())
			return nil
		}
		if err != nil {
			return fmt.Errorf("propagate %s: connector: %w", d.Binding, err)
		}
	}

	if err := b.writeSink(d, v); err != nil {
		return fmt.Errorf("propagate %s: %w", d.Binding, err)
	}
	return b.trace(TraceEvent{
		Kind:   TracePropagate,
		Source: d.Source.String(),
		Sink:   d.Sink.String(),
		Value:  traceText(v),
	})
}

func (b *Binding) readSource(d *Descriptor) (value.Value, error) {
	src := d.Source
	if src.Kind == value.KindScope {
		return descend(b.store.Get(src.Path[0]), src.Path[1:]), nil
	}

	ctx, err := b.context(d, src)
	if err != nil {
		return nil, err
	}
	paths, err := src.Adapter.GetPaths(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	return toReferences(src.Adapter, ctx, src.Path, paths)
}

func (b *Binding) writeSink(d *Descriptor, v value.Value) error {
	sink := d.Sink
	if sink.Kind == value.KindScope {
		return b.writeScope(sink.Path[0], sink.Path[1:], v)
	}

	ctx, err := b.context(d, sink)
	if err != nil {
		return err
	}
	plain, err := value.Plain(v)
	if err != nil {
		return err
	}
	return sink.Adapter.Set(ctx, sink.Path, plain)
}

// writeScope writes incoming into slot id (at rest, if non-empty) following
// the reference conflict table:
//
//	current       incoming                          action
//	not a ref     anything                          overwrite
//	ref           primitive                         current.Set, notify
//	ref T         ref T                             overwrite
//	ref T1        ref T2                            current.Set(incoming value), notify
//	ref T         structure of only T refs          overwrite
//	ref T         any other structure               conflict error
func (b *Binding) writeScope(id string, rest value.Path, incoming value.Value) error {
	slot := b.store.Get(id)
	current, through := locate(slot, rest)

	overwrite := func() error {
		if through {
			// The location lies behind a reference; the reference is the
			// only way to write it.
			plain, err := value.Plain(incoming)
			if err != nil {
				return err
			}
			return b.store.WriteThrough(id, func() error { return current.(*value.Ref).Set(plain) })
		}
		if len(rest) == 0 {
			return b.store.Set(id, incoming)
		}
		return b.store.Set(id, replaceAt(slot, rest, incoming))
	}

	cur, isRef := current.(*value.Ref)
	if !isRef {
		return overwrite()
	}

	switch in := incoming.(type) {
	case *value.Ref:
		if in.Kind() == cur.Kind() {
			return overwrite()
		}
		v, err := in.GetValue()
		if err != nil {
			return err
		}
		return b.store.WriteThrough(id, func() error { return cur.Set(v) })
	default:
		if value.IsPrimitive(incoming) {
			return b.store.WriteThrough(id, func() error { return cur.Set(incoming) })
		}
		if value.ContainsOnlyRefs(cur.Kind(), incoming) {
			return overwrite()
		}
		return NewConflictError(id, cur.Kind())
	}
}

// toReferences restructures the flat paths returned by an adapter read into
// a tree whose leaves are references. A read that did not fan out becomes
// a single reference. Maps keyed exactly 0..N-1 become sequences.
func toReferences(a value.Adapter, ctx any, orig value.Path, paths []value.Path) (value.Value, error) {
	root := &refNode{}
	for _, p := range paths {
		if len(p) < len(orig) {
			return nil, internalError("adapter returned path %s shorter than requested %s", p, orig)
		}
		n := root
		for _, seg := range p[len(orig):] {
			n = n.child(seg)
		}
	}

	for _, p := range paths {
		n := root
		for _, seg := range p[len(orig):] {
			n = n.children[seg]
		}
		if len(n.order) == 0 && n.ref == nil {
			ref, err := value.NewRef(a, ctx, p)
			if err != nil {
				return nil, err
			}
			n.ref = ref
		}
	}

	return recognizeArrays(root.build()), nil
}

type refNode struct {
	children map[string]*refNode
	order    []string
	ref      *value.Ref
}

func (n *refNode) child(seg string) *refNode {
	if n.children == nil {
		n.children = make(map[string]*refNode)
	}
	c, ok := n.children[seg]
	if !ok {
		c = &refNode{}
		n.children[seg] = c
		n.order = append(n.order, seg)
	}
	return c
}

func (n *refNode) build() value.Value {
	if n.ref != nil {
		return n.ref
	}
	m := make(value.Map, len(n.order))
	for _, seg := range n.order {
		m[seg] = n.children[seg].build()
	}
	return m
}

// recognizeArrays converts every map keyed exactly "0".."N-1" into a Seq,
// recursively. Empty maps stay maps.
func recognizeArrays(v value.Value) value.Value {
	m, ok := v.(value.Map)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = recognizeArrays(child)
	}
	if len(m) == 0 {
		return m
	}
	seq := make(value.Seq, len(m))
	for k, child := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return m
		}
		seq[i] = child
	}
	return seq
}

// descend walks path into v. Crossing a reference yields a reference to the
// deeper location.
func descend(v value.Value, path value.Path) value.Value {
	cur, _ := locate(v, path)
	return cur
}

// locate is descend that also reports whether a reference was crossed.
func locate(v value.Value, path value.Path) (value.Value, bool) {
	cur := v
	for i, seg := range path {
		switch node := cur.(type) {
		case value.Map:
			cur = node[seg]
		case value.Seq:
			idx, ok := path.Index(i)
			if !ok || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		case *value.Ref:
			return node.WithPath(append(node.Path(), path[i:]...)), true
		default:
			return nil, false
		}
	}
	return cur, false
}

// replaceAt returns a copy of root with the value at path replaced by v.
// Missing or primitive intermediate locations become maps.
func replaceAt(root value.Value, path value.Path, v value.Value) value.Value {
	if len(path) == 0 {
		return v
	}
	switch node := root.(type) {
	case value.Seq:
		if idx, ok := path.Index(0); ok && idx < len(node) {
			out := make(value.Seq, len(node))
			copy(out, node)
			out[idx] = replaceAt(node[idx], path[1:], v)
			return out
		}
	case value.Map:
		out := make(value.Map, len(node)+1)
		for k, elem := range node {
			out[k] = elem
		}
		out[path[0]] = replaceAt(node[path[0]], path[1:], v)
		return out
	}
	return value.Map{path[0]: replaceAt(nil, path[1:], v)}
}
