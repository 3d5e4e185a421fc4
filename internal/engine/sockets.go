package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/value"
)

// SocketInstance is one live occurrence of a socket. Keys are the instance
// keys from the innermost repeated region outwards.
type SocketInstance struct {
	Keys    []value.Value
	Element *dom.Node
}

// SocketFunc observes socket insertion or removal.
type SocketFunc func(keys []value.Value, element *dom.Node) error

type socketState struct {
	live     []SocketInstance
	onInsert []SocketFunc
	onRemove []SocketFunc
}

// insert makes el live and notifies onInsert. An element that is already
// live is left alone and reports false.
func (s *socketState) insert(keys []value.Value, el *dom.Node) (bool, error) {
	if s.isLive(el) {
		return false, nil
	}
	s.live = append(s.live, SocketInstance{Keys: keys, Element: el})
	return true, notify(s.onInsert, keys, el)
}

func (s *socketState) remove(keys []value.Value, el *dom.Node) (bool, error) {
	if !s.isLive(el) {
		return false, nil
	}
	s.live = slices.DeleteFunc(s.live, func(si SocketInstance) bool { return si.Element == el })
	return true, notify(s.onRemove, keys, el)
}

func (s *socketState) isLive(el *dom.Node) bool {
	return slices.ContainsFunc(s.live, func(si SocketInstance) bool { return si.Element == el })
}

func notify(cbs []SocketFunc, keys []value.Value, el *dom.Node) error {
	for _, cb := range slices.Clone(cbs) {
		if err := cb(slices.Clone(keys), el); err != nil {
			return err
		}
	}
	return nil
}

// SocketHandle exposes one declared socket to callers.
type SocketHandle struct {
	id    string
	state *socketState
}

// Socket returns the handle for a declared socket id.
func (b *Binding) Socket(id string) (*SocketHandle, error) {
	if err := b.checkAlive("socket"); err != nil {
		return nil, err
	}
	st, ok := b.sockets[id]
	if !ok {
		return nil, lookupError(id, "socket %q not found; available sockets: [%s]", id, strings.Join(b.SocketIDs(), ", "))
	}
	return &SocketHandle{id: id, state: st}, nil
}

// SocketIDs returns every declared socket id, sorted.
func (b *Binding) SocketIDs() []string {
	ids := make([]string, 0, len(b.sockets))
	for id := range b.sockets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ID returns the socket id.
func (h *SocketHandle) ID() string {
	return h.id
}

// Instances returns the number of live occurrences.
func (h *SocketHandle) Instances() int {
	return len(h.state.live)
}

// Instance returns a copy of the n-th live occurrence, in insertion order.
func (h *SocketHandle) Instance(n int) (SocketInstance, error) {
	if n < 0 || n >= len(h.state.live) {
		return SocketInstance{}, lookupError(h.id, "socket instance %d out of range [0, %d)", n, len(h.state.live))
	}
	si := h.state.live[n]
	return SocketInstance{Keys: slices.Clone(si.Keys), Element: si.Element}, nil
}

// OnInsert registers cb for every later insertion.
func (h *SocketHandle) OnInsert(cb SocketFunc) {
	h.state.onInsert = append(h.state.onInsert, cb)
}

// OnRemove registers cb for every later removal.
func (h *SocketHandle) OnRemove(cb SocketFunc) {
	h.state.onRemove = append(h.state.onRemove, cb)
}

// socketInsert notifies the sockets of inst. Sockets fire whether or not
// the binding is mounted; Unmount releases every live socket and Mount
// announces the ones not live.
func (b *Binding) socketInsert(l *link, inst *instance) error {
	return b.fireSockets(l, inst, TraceSocketInsert, (*socketState).insert)
}

func (b *Binding) socketRemove(l *link, inst *instance) error {
	return b.fireSockets(l, inst, TraceSocketRemove, (*socketState).remove)
}

func (b *Binding) fireSockets(l *link, inst *instance, kind TraceKind, fire func(*socketState, []value.Value, *dom.Node) (bool, error)) error {
	if len(inst.sockets) == 0 {
		return nil
	}
	keys := l.keyPath(inst)
	for _, s := range inst.sockets {
		st, ok := b.sockets[s.id]
		if !ok {
			return internalError("socket %q was not declared", s.id)
		}
		fired, err := fire(st, keys, s.element)
		if err != nil {
			return fmt.Errorf("socket %q: %w", s.id, err)
		}
		if !fired {
			continue
		}
		if err := b.trace(TraceEvent{Kind: kind, Source: l.sourceID, Sink: s.id, Key: joinKeys(keys)}); err != nil {
			return err
		}
	}
	return nil
}

// walkSockets applies fire to every live instance of l and its descendants,
// parents before children.
func (b *Binding) walkSockets(l *link, fire func(*link, *instance) error) error {
	for _, inst := range l.instances {
		if err := fire(l, inst); err != nil {
			return err
		}
		for _, child := range inst.links {
			if err := b.walkSockets(child, fire); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinKeys(keys []value.Value) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keyText(k)
	}
	return strings.Join(parts, ",")
}
