// Package value provides the value model shared by every layer of the
// binding runtime.
//
// This package contains the sealed Value sum type, the Ref indirection
// handle, and the Adapter contracts a Ref delegates to. All other internal
// packages import value; value imports nothing internal.
//
// Key design constraints:
//   - Undefined is a nil Value, never a sentinel type
//   - Null, String, Int, Float and Bool are primitives
//   - Seq and Map are plain containers; a *Ref may appear at any leaf
//   - Equality is structural for Seq/Map, identity for *Ref, and by value
//     for primitives
//   - A Ref never performs I/O itself; it always delegates to its Adapter
package value
