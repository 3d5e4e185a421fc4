// Package engine implements the propagation and reconciliation engines of
// the binding runtime, and the top-level Binding that owns them.
//
// ARCHITECTURE:
//
// Propagation:
// Every ast.Binding of a structural scope becomes a Descriptor with exactly
// one source and one sink endpoint. Endpoints are the scratch scope (the
// binding prefix, "@" by default) or a registered view/model adapter. The
// engine observes each source and re-runs the transfer when it changes:
// read, run the connector chain, write the sink. Writes into the scope go
// through a conflict table that decides whether a Reference already stored
// in the slot is overwritten or written through.
//
// Reconciliation:
// The iteration tree (Node) describes repeated regions of the template. At
// runtime each region of each live parent instance is a link whose instances
// mirror the collection in the link's driving scope slot. Collection changes
// are diffed (edit distance for sequences, key sets for maps, presence for
// booleans) and applied as add/remove/replace ops, in order.
//
// Execution Model:
// Everything is synchronous and single-threaded. Observer callbacks run on
// the stack of the mutation that triggered them and return errors up that
// stack. No goroutines are started.
//
// CRITICAL PATTERNS:
//
// Bootstrap order: after wiring a scope, its bindings are propagated once,
// model sources first, then scope sources, then view sources.
//
// Symmetric teardown: everything observed by Activate or by an add op is
// unobserved by Deactivate or by the matching remove op.
//
// Re-entrancy bound: the equality short-circuit in scope.Store.Set ends
// idempotent loops; WithMaxDepth aborts runaway propagation chains.
package engine
