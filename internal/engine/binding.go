package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/registry"
	"github.com/roach88/vdb/internal/scope"
	"github.com/roach88/vdb/internal/value"
)

// DefaultPrefix is the namespace that addresses the scope store.
const DefaultPrefix = "@"

// DefaultIDPrefix prefixes every instance-private scope id.
const DefaultIDPrefix = "temp"

// Binding is one top-level data binding: a template, its iteration tree and
// the scope store shared by every instance.
//
// Binding is single-threaded. Every observer callback runs synchronously
// on the stack of the mutation that triggered it.
//
// INVARIANTS:
//   - each instance's wiring is torn down exactly once, before its slots
//   - observer ids registered by Activate are all released by Deactivate
//   - a paused binding queues each descriptor at most once
type Binding struct {
	tree     *Node
	store    *scope.Store
	registry *registry.Registry
	model    any
	prefix   string
	idPrefix string
	logger   *slog.Logger
	tracer   Tracer
	runIDs   RunIDGenerator
	maxDepth int

	ids    *Clock // instance-private scope ids
	events *Clock // trace event sequence
	runID  string
	depth  *depthGuard
	queue  *propagationQueue

	root       *link
	sockets    map[string]*socketState
	mountPoint *dom.Node

	active    bool
	paused    bool
	mounted   bool
	destroyed bool
}

// Option configures a Binding.
type Option func(*Binding)

// WithModel sets the context handed to model adapters.
func WithModel(model any) Option {
	return func(b *Binding) {
		b.model = model
	}
}

// WithPrefix sets the namespace that addresses the scope store.
//
// Default: "@" (DefaultPrefix)
func WithPrefix(prefix string) Option {
	return func(b *Binding) {
		b.prefix = prefix
	}
}

// WithRegistry sets the registry adapters and connectors are resolved from.
func WithRegistry(r *registry.Registry) Option {
	return func(b *Binding) {
		b.registry = r
	}
}

// WithLogger sets the structured logger. Default: slog.Default(). A nil
// logger keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTracer sets the receiver of trace events.
func WithTracer(t Tracer) Option {
	return func(b *Binding) {
		b.tracer = t
	}
}

// WithIDPrefix sets the prefix of instance-private scope ids.
//
// Default: "temp" (DefaultIDPrefix)
func WithIDPrefix(prefix string) Option {
	return func(b *Binding) {
		b.idPrefix = prefix
	}
}

// WithRunIDGenerator sets the generator of the run id stamped on trace
// events. Use NewFixedGenerator for deterministic tests.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(b *Binding) {
		b.runIDs = g
	}
}

// WithMaxDepth bounds nested propagation. Zero disables the bound.
//
// Default: 256 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(b *Binding) {
		b.maxDepth = n
	}
}

// New validates tree and creates an inactive, unmounted Binding over it.
// The root template is used in place; nested templates are cloned per
// instance.
func New(tree *Node, opts ...Option) (*Binding, error) {
	b := &Binding{
		prefix:   DefaultPrefix,
		idPrefix: DefaultIDPrefix,
		logger:   slog.Default(),
		tracer:   nopTracer{},
		runIDs:   UUIDv7Generator{},
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}

	if tree == nil {
		return nil, structureError("binding has no iteration tree")
	}
	if err := tree.validate(true); err != nil {
		return nil, err
	}
	if b.registry == nil {
		b.registry = registry.New()
	}

	b.tree = tree
	b.store = scope.New(scope.WithLogger(b.logger))
	b.ids = NewClock()
	b.events = NewClock()
	b.runID = b.runIDs.Generate()
	b.depth = newDepthGuard(b.maxDepth)
	b.queue = newPropagationQueue()

	ids := make(map[string]bool)
	tree.socketIDs(ids)
	b.sockets = make(map[string]*socketState, len(ids))
	for id := range ids {
		b.sockets[id] = &socketState{}
	}

	root := &instance{
		template:     tree.Template,
		spec:         tree.Spec.Clone(),
		renames:      map[string]string{},
		placeholders: tree.Placeholders,
	}
	for _, s := range tree.Sockets {
		root.sockets = append(root.sockets, boundSocket{id: s.ID, element: s.Element})
	}
	b.root = &link{node: tree, instances: []*instance{root}}

	return b, nil
}

// Store returns the binding's scope store.
func (b *Binding) Store() *scope.Store {
	return b.store
}

// Template returns the root template.
func (b *Binding) Template() *dom.Node {
	return b.tree.Template
}

// RunID returns the id stamped on this binding's trace events.
func (b *Binding) RunID() string {
	return b.runID
}

// Prefix returns the namespace that addresses the scope store.
func (b *Binding) Prefix() string {
	return b.prefix
}

// Active reports whether the binding is activated.
func (b *Binding) Active() bool { return b.active }

// Paused reports whether the binding is paused.
func (b *Binding) Paused() bool { return b.paused }

// Mounted reports whether the root template is mounted.
func (b *Binding) Mounted() bool { return b.mounted }

func (b *Binding) checkAlive(op string) error {
	if b.destroyed {
		return &Error{Code: ErrCodeDestroyed, Message: fmt.Sprintf("%s on destroyed binding", op), ID: b.runID}
	}
	return nil
}

// Activate wires the root scope, runs its bootstrap pass and builds every
// first-level repeated region.
func (b *Binding) Activate() error {
	if err := b.checkAlive("activate"); err != nil {
		return err
	}
	if b.active {
		b.logger.Warn("binding already active", "run_id", b.runID)
		return nil
	}
	b.active = true

	root := b.root.instances[0]
	if err := b.wireInstance(root); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for i := range b.tree.Children {
		if err := b.initChild(b.root, root, i); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}

	b.logger.Info("binding activated", "run_id", b.runID, "regions", len(root.links))
	return nil
}

// Deactivate tears down everything Activate built, in reverse order.
func (b *Binding) Deactivate() error {
	if err := b.checkAlive("deactivate"); err != nil {
		return err
	}
	if !b.active {
		b.logger.Warn("binding not active", "run_id", b.runID)
		return nil
	}

	root := b.root.instances[0]
	for _, l := range root.links {
		b.store.Unobserve(l.observerID)
	}
	var errs []error
	empties := make([]value.Value, len(root.links))
	for i, l := range root.links {
		empties[i] = emptyShape(l.collection)
		if err := b.clear(l); err != nil {
			errs = append(errs, err)
		}
	}
	// Unwire first so emptying a slot propagates nowhere.
	b.unwireInstance(root)
	for i, l := range root.links {
		if err := b.resetSlot(l, empties[i]); err != nil {
			errs = append(errs, err)
		}
	}
	root.links = nil
	b.active = false

	b.logger.Info("binding deactivated", "run_id", b.runID)
	return errors.Join(errs...)
}

// Pause defers every propagation until Resume. Scope notifications are
// coalesced per slot, propagations per descriptor.
func (b *Binding) Pause() error {
	if err := b.checkAlive("pause"); err != nil {
		return err
	}
	if b.paused {
		b.logger.Warn("binding already paused", "run_id", b.runID)
		return nil
	}
	b.store.Pause()
	b.paused = true
	return nil
}

// Resume replays deferred scope notifications, then runs every queued
// descriptor once. Errors from all replayed work are joined.
func (b *Binding) Resume() error {
	if err := b.checkAlive("resume"); err != nil {
		return err
	}
	if !b.paused {
		b.logger.Warn("binding not paused", "run_id", b.runID)
		return nil
	}

	var errs []error
	if err := b.store.Resume(); err != nil {
		errs = append(errs, err)
	}
	b.paused = false

	queued := b.queue.Drain()
	b.logger.Debug("binding resumed", "run_id", b.runID, "queued", len(queued))
	for _, d := range queued {
		if d.retired {
			continue
		}
		if err := b.propagate(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mount replaces target with the root template and fires socket insertion
// for every instance whose sockets are not live yet. Mounting a mounted
// binding first fires removal.
func (b *Binding) Mount(target *dom.Node) error {
	if err := b.checkAlive("mount"); err != nil {
		return err
	}
	if target == nil || !target.Attached() {
		return structureError("mount point is missing or detached")
	}

	if b.mounted {
		if err := b.walkSockets(b.root, b.socketRemove); err != nil {
			return err
		}
		b.tree.Template.ReplaceWith(b.mountPoint)
	}

	target.ReplaceWith(b.tree.Template)
	b.mountPoint = target
	b.mounted = true

	b.logger.Info("binding mounted", "run_id", b.runID, "target", target.Label())
	return b.walkSockets(b.root, b.socketInsert)
}

// Unmount fires socket removal for every live instance and puts the mount
// point back in place of the root template.
func (b *Binding) Unmount() error {
	if err := b.checkAlive("unmount"); err != nil {
		return err
	}
	if !b.mounted {
		b.logger.Warn("binding not mounted", "run_id", b.runID)
		return nil
	}

	err := b.walkSockets(b.root, b.socketRemove)
	b.tree.Template.ReplaceWith(b.mountPoint)
	b.mountPoint = nil
	b.mounted = false

	b.logger.Info("binding unmounted", "run_id", b.runID)
	return err
}

// Destroy resumes, deactivates and unmounts as needed. Every later call on
// the binding fails with ErrCodeDestroyed.
func (b *Binding) Destroy() error {
	if err := b.checkAlive("destroy"); err != nil {
		return err
	}

	var errs []error
	if b.paused {
		errs = append(errs, b.Resume())
	}
	if b.active {
		errs = append(errs, b.Deactivate())
	}
	if b.mounted {
		errs = append(errs, b.Unmount())
	}
	b.destroyed = true

	b.logger.Info("binding destroyed", "run_id", b.runID)
	return errors.Join(errs...)
}

// mintID returns a fresh instance-private scope id.
func (b *Binding) mintID() string {
	return b.idPrefix + strconv.FormatInt(b.ids.Next(), 10)
}
