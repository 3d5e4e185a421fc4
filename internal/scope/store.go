// Package scope implements the observable slot store that backs a binding's
// scratch variables.
//
// A Store keeps one value per string id. Writes that change a slot notify the
// slot's observers synchronously, in registration order. When a slot value
// embeds *value.Ref leaves, the store observes each referenced location and
// re-notifies the slot when it changes out-of-band.
//
// The store is single-threaded; callbacks run re-entrantly on the caller's
// stack. The equality short-circuit in Set bounds mutual re-triggering.
package scope

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/vdb/internal/value"
)

// Callback is invoked when an observed slot is notified.
type Callback func() error

type observer struct {
	id int
	cb Callback
}

type refObserver struct {
	ref *value.Ref
	id  int
}

// Store is the scratch scope of a binding.
type Store struct {
	slots        map[string]value.Value
	observers    map[string][]observer
	refObservers map[string][]refObserver
	nextID       int

	paused bool
	queue  []string
	muted  map[string]int

	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug tracing. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		slots:        make(map[string]value.Value),
		observers:    make(map[string][]observer),
		refObservers: make(map[string][]refObserver),
		muted:        make(map[string]int),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current slot value, or nil if the slot does not exist.
func (s *Store) Get(id string) value.Value {
	return s.slots[id]
}

// Has reports whether the slot exists.
func (s *Store) Has(id string) bool {
	_, ok := s.slots[id]
	return ok
}

// IDs returns the ids of all existing slots in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Set stores v under id and notifies observers, unless v is deeply equal to
// the current value. References embedded in the old value are unobserved
// before the write; references in the new value are observed after the
// notification.
func (s *Store) Set(id string, v value.Value) error {
	if value.Equal(s.slots[id], v) {
		return nil
	}

	s.unobserveRefs(id)
	s.slots[id] = v

	notifyErr := s.Notify(id)
	observeErr := s.observeRefs(id, v)
	if notifyErr != nil {
		return notifyErr
	}
	return observeErr
}

// Notify invokes every observer registered for id without changing its
// value. While the store is paused the id is queued, at most once, and
// replayed by Resume.
//
// The first callback error stops notification and is returned.
func (s *Store) Notify(id string) error {
	if s.paused {
		if !slices.Contains(s.queue, id) {
			s.queue = append(s.queue, id)
		}
		return nil
	}

	// Callbacks may observe or unobserve; iterate over a snapshot.
	for _, o := range slices.Clone(s.observers[id]) {
		if err := o.cb(); err != nil {
			return fmt.Errorf("notify %q: %w", id, err)
		}
	}
	return nil
}

// Observe registers cb for id and returns an observer id that is unique
// across all slots of this store.
func (s *Store) Observe(id string, cb Callback) int {
	s.nextID++
	s.observers[id] = append(s.observers[id], observer{id: s.nextID, cb: cb})
	s.logger.Debug("scope observer registered", "slot", id, "observer", s.nextID)
	return s.nextID
}

// Unobserve removes exactly one registration. Unknown ids are ignored.
func (s *Store) Unobserve(observerID int) {
	for id, list := range s.observers {
		idx := slices.IndexFunc(list, func(o observer) bool { return o.id == observerID })
		if idx < 0 {
			continue
		}
		list = slices.Delete(list, idx, idx+1)
		if len(list) == 0 {
			delete(s.observers, id)
		} else {
			s.observers[id] = list
		}
		return
	}
}

// Destroy unobserves every reference embedded in the slot and deletes it.
// Observers registered on the id are left in place.
func (s *Store) Destroy(id string) {
	s.unobserveRefs(id)
	delete(s.slots, id)
}

// Pause defers notifications until Resume.
func (s *Store) Pause() {
	s.paused = true
}

// Resume replays queued notifications in queue order. Every queued id is
// replayed even if an earlier one fails; the errors are joined.
func (s *Store) Resume() error {
	s.paused = false
	queue := s.queue
	s.queue = nil

	var errs []error
	for _, id := range queue {
		if err := s.Notify(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paused reports whether notifications are currently deferred.
func (s *Store) Paused() bool {
	return s.paused
}

// ObserverCount returns the number of observers registered for id.
func (s *Store) ObserverCount(id string) int {
	return len(s.observers[id])
}

// ObservedIDs returns, in sorted order, every slot id with at least one
// observer registered.
func (s *Store) ObservedIDs() []string {
	ids := make([]string, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RefObserverCount returns the number of references the store currently
// observes on behalf of id.
func (s *Store) RefObserverCount(id string) int {
	return len(s.refObservers[id])
}

// WriteThrough runs write, which stores into a location referenced from
// slot id, and then notifies id exactly once. Reference notifications for id
// raised by write itself are swallowed, so adapters that echo their own
// writes and adapters that stay silent look the same to observers.
func (s *Store) WriteThrough(id string, write func() error) error {
	s.muted[id]++
	err := write()
	if s.muted[id]--; s.muted[id] == 0 {
		delete(s.muted, id)
	}
	if err != nil {
		return err
	}
	return s.Notify(id)
}

func (s *Store) observeRefs(id string, v value.Value) error {
	for _, ref := range value.Refs(v) {
		obsID, err := ref.Observe(func() error {
			if s.muted[id] > 0 {
				return nil
			}
			return s.Notify(id)
		})
		if err != nil {
			return fmt.Errorf("observe reference %s for %q: %w", ref, id, err)
		}
		s.logger.Debug("observing reference", "slot", id, "ref", ref.String())
		s.refObservers[id] = append(s.refObservers[id], refObserver{ref: ref, id: obsID})
	}
	return nil
}

func (s *Store) unobserveRefs(id string) {
	for _, ro := range s.refObservers[id] {
		s.logger.Debug("unobserving reference", "slot", id, "ref", ro.ref.String())
		ro.ref.Unobserve(ro.id)
	}
	delete(s.refObservers, id)
}
