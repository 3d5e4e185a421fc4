package engine

// propagationQueue holds descriptors whose sources changed while the binding
// was paused. Each descriptor is queued at most once; Drain returns them in
// first-enqueued order.
type propagationQueue struct {
	items  []*Descriptor
	queued map[*Descriptor]bool
}

func newPropagationQueue() *propagationQueue {
	return &propagationQueue{queued: make(map[*Descriptor]bool)}
}

// Enqueue adds d unless it is already queued. Reports whether it was added.
func (q *propagationQueue) Enqueue(d *Descriptor) bool {
	if q.queued[d] {
		return false
	}
	q.queued[d] = true
	q.items = append(q.items, d)
	return true
}

// Drain empties the queue and returns its previous contents.
func (q *propagationQueue) Drain() []*Descriptor {
	items := q.items
	q.items = nil
	q.queued = make(map[*Descriptor]bool)
	return items
}

// Forget drops d if queued. Used when the descriptor's instance is torn down.
func (q *propagationQueue) Forget(d *Descriptor) {
	if !q.queued[d] {
		return
	}
	delete(q.queued, d)
	for i, item := range q.items {
		if item == d {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Len returns the number of queued descriptors.
func (q *propagationQueue) Len() int {
	return len(q.items)
}
