// Package sets provides a comprehensive collection of set data structures and operations
// for Go, implementing mathematical set theory with type safety through generics.
//
// # Overview
//
// This package offers a hash map-backed set implementation:
//
//   - HashSet: Fast, unordered set implementation using hash maps (O(1) operations)
//
// HashSet satisfies the Set[T comparable] interface.
package sets
