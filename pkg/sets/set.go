package sets

import (
	"iter"
)

// Set represents a collection that contains no duplicate elements. More formally,
// sets contain no pair of elements e1 and e2 such that e1 == e2.
// As implied by its name, this interface models the mathematical set abstraction.
//
// The Set interface places additional requirements on the contracts of all
// constructors and methods. All constructors must create a set that contains
// no duplicate elements.
//
// Great care must be exercised if mutable objects are used as set elements.
// The behavior of a set is not specified if the value of an object is changed
// in a manner that affects equality comparisons while the object is an element
// in the set.
//
// HashSet is the package's sole implementation, backed by a Go map.
//
// Basic usage:
//
//	set := NewHashSet[string]()
//	changed := set.Add("hello")     // returns true
//	changed = set.Add("hello")      // returns false (already exists)
//	exists := set.Contains("hello") // returns true
//	size := set.Size()              // returns 1
type Set[T comparable] interface {
	// Size returns the number of elements in this set (its cardinality).
	Size() int

	// IsEmpty returns true if this set contains no elements.
	IsEmpty() bool

	// Contains returns true if this set contains the specified element.
	Contains(x T) bool

	// ContainsAll returns true if this set contains all of the specified elements.
	// Returns true for an empty argument list.
	ContainsAll(items ...T) bool

	// ContainsAny returns true if this set contains any of the specified elements.
	// Returns false for an empty argument list.
	ContainsAny(items ...T) bool

	// Add adds the specified element to this set if it is not already present.
	// Returns true if this set did not already contain the specified element.
	Add(x T) bool

	// AddAll adds all of the specified elements to this set if they're not already present.
	// Returns true if this set changed as a result of the call.
	AddAll(items ...T) bool

	// Remove removes the specified element from this set if it is present.
	// Returns true if this set changed as a result of the call.
	Remove(x T) bool

	// RemoveAll removes all of the specified elements from this set if they are present.
	// Returns true if this set changed as a result of the call.
	RemoveAll(items ...T) bool

	// Retain retains only the specified element in this set, removing all others.
	// Returns true if this set changed as a result of the call.
	Retain(x T) bool

	// RetainAll retains only the elements in this set that are contained in the
	// specified items. If items is empty, this method clears the set.
	// Returns true if this set changed as a result of the call.
	RetainAll(items ...T) bool

	// Clear removes all of the elements from this set.
	Clear()

	// Iter returns an iterator over the elements in this set, in undefined order.
	//
	//	for element := range set.Iter() {
	//		// process element
	//	}
	Iter() iter.Seq[T]

	// ToSlice returns a slice containing all of the elements in this set.
	// The returned slice is "safe" in that no references to it are maintained
	// by this set.
	ToSlice() []T

	// Clone creates a shallow copy of this set.
	Clone() Set[T]
}
