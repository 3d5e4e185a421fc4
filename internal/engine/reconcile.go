package engine

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/vdb/internal/value"
)

// initChild builds the live link for child idx of owner's node, observes
// its driving slot and reconciles it once.
func (b *Binding) initChild(parent *link, owner *instance, idx int) error {
	node := parent.node.Children[idx]
	sourceID := node.SourceID
	if renamed, ok := owner.renames[sourceID]; ok {
		sourceID = renamed
	}

	l := &link{
		node:        node,
		parent:      parent,
		owner:       owner,
		sourceID:    sourceID,
		collection:  value.Seq{},
		placeholder: owner.placeholders[idx],
	}
	owner.links = append(owner.links, l)
	l.observerID = b.store.Observe(sourceID, func() error { return b.changeListener(l) })
	b.logger.Debug("region observed", "source", sourceID, "observer", l.observerID)

	return b.changeListener(l)
}

// changeListener reconciles l against the current value of its driving
// slot.
func (b *Binding) changeListener(l *link) error {
	raw := b.store.Get(l.sourceID)
	if ref, ok := raw.(*value.Ref); ok {
		v, err := ref.GetValue()
		if err != nil {
			return fmt.Errorf("region %q: %w", l.sourceID, err)
		}
		raw = v
	}
	if raw == nil {
		raw = value.Seq{}
	}
	plain, err := value.Plain(raw)
	if err != nil {
		return fmt.Errorf("region %q: %w", l.sourceID, err)
	}

	old := l.collection
	ops := shapeOps(old, plain, raw)
	l.collection = plain

	// Only edit scripts between two sequences shift keys.
	_, oldSeq := old.(value.Seq)
	_, newSeq := plain.(value.Seq)
	renumber := oldSeq && newSeq

	for _, op := range ops {
		if err := b.apply(l, op, renumber); err != nil {
			return fmt.Errorf("region %q: %w", l.sourceID, err)
		}
	}
	return nil
}

func isCollection(v value.Value) bool {
	switch v.(type) {
	case value.Seq, value.Map:
		return true
	}
	return false
}

// shapeOps diffs two snapshots of a driving slot. Sequences and maps are
// collections; any other value is a presence flag with at most one
// instance, key 0.
func shapeOps(old, plain, raw value.Value) []Op {
	oldColl, newColl := isCollection(old), isCollection(plain)
	switch {
	case oldColl && newColl:
		return diff(old, plain, raw)
	case oldColl:
		ops := keyedDiff(asKeyed(old), keyed{}, keyed{})
		if value.Truthy(plain) {
			ops = append(ops, Op{Kind: OpAdd, Key: value.Int(0), Value: raw})
		}
		return ops
	case newColl:
		var ops []Op
		if value.Truthy(old) {
			ops = append(ops, Op{Kind: OpRemove, Key: value.Int(0)})
		}
		return append(ops, diff(value.Seq{}, plain, raw)...)
	}

	was, is := value.Truthy(old), value.Truthy(plain)
	switch {
	case !was && is:
		return []Op{{Kind: OpAdd, Key: value.Int(0), Value: raw}}
	case was && !is:
		return []Op{{Kind: OpRemove, Key: value.Int(0)}}
	case was && is && !value.Equal(old, plain):
		return []Op{{Kind: OpReplace, Key: value.Int(0), Value: raw}}
	}
	return nil
}

func (b *Binding) apply(l *link, op Op, renumber bool) error {
	switch op.Kind {
	case OpAdd:
		return b.add(l, op, renumber)
	case OpRemove:
		return b.remove(l, op, renumber)
	case OpReplace:
		return b.replace(l, op)
	default:
		return internalError("unknown op kind %q", op.Kind)
	}
}

func (b *Binding) add(l *link, op Op, renumber bool) error {
	inst, err := b.addInstance(l, op)
	if err != nil {
		return err
	}
	for i := range l.node.Children {
		if err := b.initChild(l, inst, i); err != nil {
			return err
		}
	}
	if err := b.wireInstance(inst); err != nil {
		return err
	}
	if renumber {
		k, ok := op.Key.(value.Int)
		if !ok {
			return internalError("sequence add with key %v", op.Key)
		}
		return b.shiftKeys(l, inst, int(k), 1)
	}
	return nil
}

// addInstance clones the node template, mints the instance's private ids,
// inserts the clone and fires socket insertion.
func (b *Binding) addInstance(l *link, op Op) (*instance, error) {
	node := l.node
	tmpl := node.Template.Clone()
	inst := &instance{
		key:      op.Key,
		template: tmpl,
		renames:  make(map[string]string),
	}

	for _, p := range node.Placeholders {
		c, err := node.Template.Locate(p, tmpl)
		if err != nil {
			return nil, internalError("placeholder: %v", err)
		}
		inst.placeholders = append(inst.placeholders, c)
	}
	for _, s := range node.Sockets {
		c, err := node.Template.Locate(s.Element, tmpl)
		if err != nil {
			return nil, internalError("socket %q: %v", s.ID, err)
		}
		inst.sockets = append(inst.sockets, boundSocket{id: s.ID, element: c})
	}
	spec := node.Spec.Clone()
	for _, sc := range spec.All() {
		if sc.Element == nil {
			continue
		}
		c, err := node.Template.Locate(sc.Element, tmpl)
		if err != nil {
			return nil, internalError("scope: %v", err)
		}
		sc.Element = c
	}

	for _, id := range node.Own {
		inst.renames[id] = b.mintID()
	}
	if node.EntryID != "" {
		inst.entryID = b.mintID()
		inst.renames[node.EntryID] = inst.entryID
		if err := b.store.Set(inst.entryID, op.Value); err != nil {
			return nil, err
		}
	}
	if node.KeyID != "" {
		inst.keyID = b.mintID()
		inst.renames[node.KeyID] = inst.keyID
		if err := b.store.Set(inst.keyID, op.Key); err != nil {
			return nil, err
		}
	}
	for from, to := range l.owner.renames {
		if _, own := inst.renames[from]; !own {
			inst.renames[from] = to
		}
	}
	spec.Rename(b.prefix, inst.renames)
	inst.spec = spec

	anchor, pos := l.placeholder, 0
	if after := op.AfterKey; after != nil && !sameKey(after, value.Int(-1)) && len(l.instances) > 0 {
		idx := l.find(after)
		if idx < 0 {
			return nil, lookupError(keyText(after), "no instance with key %s to insert after in %q", keyText(after), l.sourceID)
		}
		anchor, pos = l.instances[idx].template, idx+1
	}
	if err := anchor.After(tmpl); err != nil {
		return nil, internalError("insert instance %s: %v", keyText(op.Key), err)
	}
	l.instances = slices.Insert(l.instances, pos, inst)

	b.logger.Debug("instance added", "source", l.sourceID, "key", keyText(op.Key), "entry", inst.entryID)
	if err := b.trace(TraceEvent{Kind: TraceAdd, Source: l.sourceID, Key: keyText(op.Key), Value: traceText(op.Value)}); err != nil {
		return nil, err
	}
	if err := b.socketInsert(l, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Binding) remove(l *link, op Op, renumber bool) error {
	idx := l.find(op.Key)
	if idx < 0 {
		return lookupError(keyText(op.Key), "no instance with key %s in %q", keyText(op.Key), l.sourceID)
	}
	inst := l.instances[idx]

	b.unwireInstance(inst)
	for _, child := range inst.links {
		if err := b.destroyLink(child); err != nil {
			return err
		}
	}
	inst.links = nil
	if err := b.removeInstance(l, inst); err != nil {
		return err
	}

	if renumber {
		k, ok := op.Key.(value.Int)
		if !ok {
			return internalError("sequence remove with key %v", op.Key)
		}
		return b.shiftKeys(l, nil, int(k), -1)
	}
	return nil
}

// removeInstance fires socket removal, detaches the clone and destroys the
// instance's private slots.
func (b *Binding) removeInstance(l *link, inst *instance) error {
	if err := b.socketRemove(l, inst); err != nil {
		return err
	}

	idx := slices.Index(l.instances, inst)
	if idx < 0 {
		return internalError("instance %s is not part of %q", keyText(inst.key), l.sourceID)
	}
	l.instances = slices.Delete(l.instances, idx, idx+1)
	inst.template.Detach()

	for _, id := range l.node.Own {
		b.store.Destroy(inst.renames[id])
	}
	if inst.entryID != "" {
		b.store.Destroy(inst.entryID)
	}
	if inst.keyID != "" {
		b.store.Destroy(inst.keyID)
	}

	b.logger.Debug("instance removed", "source", l.sourceID, "key", keyText(inst.key))
	return b.trace(TraceEvent{Kind: TraceRemove, Source: l.sourceID, Key: keyText(inst.key)})
}

func (b *Binding) replace(l *link, op Op) error {
	idx := l.find(op.Key)
	if idx < 0 {
		return lookupError(keyText(op.Key), "no instance with key %s in %q", keyText(op.Key), l.sourceID)
	}
	inst := l.instances[idx]
	if inst.entryID != "" {
		if err := b.store.Set(inst.entryID, op.Value); err != nil {
			return err
		}
	}
	return b.trace(TraceEvent{Kind: TraceReplace, Source: l.sourceID, Key: keyText(op.Key), Value: traceText(op.Value)})
}

// destroyLink stops observing l's driving slot, removes every instance
// below it and empties the slot when its owner holds it.
func (b *Binding) destroyLink(l *link) error {
	b.store.Unobserve(l.observerID)
	b.logger.Debug("region unobserved", "source", l.sourceID, "observer", l.observerID)
	empty := emptyShape(l.collection)
	if err := b.clear(l); err != nil {
		return err
	}
	return b.resetSlot(l, empty)
}

// resetSlot stores empty in l's driving slot, which releases any model
// references the slot held. Slots inherited from an enclosing scope are
// shared with sibling instances and stay as they are.
func (b *Binding) resetSlot(l *link, empty value.Value) error {
	if !b.ownsSlot(l) {
		return nil
	}
	if err := b.store.Set(l.sourceID, empty); err != nil {
		return fmt.Errorf("reset %q: %w", l.sourceID, err)
	}
	return nil
}

func (b *Binding) ownsSlot(l *link) bool {
	if l.parent == b.root {
		return true
	}
	owner := l.parent.node
	id := l.node.SourceID
	return slices.Contains(owner.Own, id) || id == owner.EntryID || id == owner.KeyID
}

// emptyShape is the empty value of the same kind as v: an empty map or
// sequence for collections, false for a presence region.
func emptyShape(v value.Value) value.Value {
	switch v.(type) {
	case value.Map:
		return value.Map{}
	case value.Seq, nil:
		return value.Seq{}
	}
	return value.Bool(false)
}

// clear reconciles l against an empty collection of its current shape.
func (b *Binding) clear(l *link) error {
	var ops []Op
	switch {
	case isCollection(l.collection):
		ops = keyedDiff(asKeyed(l.collection), keyed{}, keyed{})
	case value.Truthy(l.collection):
		ops = []Op{{Kind: OpRemove, Key: value.Int(0)}}
	}
	if _, ok := l.collection.(value.Map); ok {
		l.collection = value.Map{}
	} else {
		l.collection = value.Seq{}
	}

	for _, op := range ops {
		if err := b.remove(l, op, false); err != nil {
			return fmt.Errorf("clear %q: %w", l.sourceID, err)
		}
	}
	return nil
}

// shiftKeys moves every instance of l past position k by delta, except
// skip. On insertion (delta 1) keys >= k move; on removal keys > k move.
// Entry references into the driving sequence follow their instance.
func (b *Binding) shiftKeys(l *link, skip *instance, k, delta int) error {
	for _, inst := range l.instances {
		if inst == skip {
			continue
		}
		cur, ok := inst.key.(value.Int)
		if !ok {
			return internalError("instance key %v in sequence %q is not an index", inst.key, l.sourceID)
		}
		if !shifts(int(cur), k, delta) {
			continue
		}
		next := value.Int(int(cur) + delta)
		inst.key = next

		if inst.keyID != "" {
			if err := b.store.Set(inst.keyID, next); err != nil {
				return err
			}
		}
		if inst.entryID != "" {
			entry, err := shiftRefs(b.store.Get(inst.entryID), nil, k, delta)
			if err != nil {
				return err
			}
			if err := b.store.Set(inst.entryID, entry); err != nil {
				return err
			}
		}
		b.logger.Debug("instance renumbered", "source", l.sourceID, "from", int64(cur), "to", int64(next))
	}
	return nil
}

func shifts(n, k, delta int) bool {
	if delta > 0 {
		return n >= k
	}
	return n > k
}

// shiftRefs returns v with the array index segment of every reference
// moved by delta. at is the location of v inside the entry value; the
// index segment sits just before it in the reference path.
func shiftRefs(v value.Value, at []string, k, delta int) (value.Value, error) {
	switch c := v.(type) {
	case *value.Ref:
		p := c.Path()
		i := len(p) - len(at) - 1
		if i < 0 || !slices.Equal([]string(p[i+1:]), at) {
			return nil, internalError("reference %s does not end in %v", c, at)
		}
		n, err := strconv.Atoi(p[i])
		if err != nil {
			return nil, internalError("reference %s has no index before %v", c, at)
		}
		if shifts(n, k, delta) {
			p[i] = strconv.Itoa(n + delta)
		}
		return c.WithPath(p), nil
	case value.Seq:
		out := make(value.Seq, len(c))
		for i, elem := range c {
			s, err := shiftRefs(elem, append(slices.Clone(at), strconv.Itoa(i)), k, delta)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case value.Map:
		out := make(value.Map, len(c))
		for key, elem := range c {
			s, err := shiftRefs(elem, append(slices.Clone(at), key), k, delta)
			if err != nil {
				return nil, err
			}
			out[key] = s
		}
		return out, nil
	default:
		return v, nil
	}
}
