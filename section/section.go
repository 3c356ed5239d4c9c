// Package section implements the constant interning sections of an output
// unit.
//
// A section collects values during the intern phase, then Prepare freezes it
// and assigns dense indices in a deterministic order. Misuse of the two
// phases (interning after Prepare, looking up before it) is a programming
// error and panics.
package section

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/deepnoodle-ai/dexasm/errz"
)

// Item is the handle returned by Intern. Repeated interning of an equal value
// returns the same *Item.
type Item[T comparable] struct {
	Value T
	index int
}

// Index returns the item's dense index. It panics before preparation.
func (it *Item[T]) Index() int {
	if it.index < 0 {
		errz.Invariantf("not prepared: %v", it.Value)
	}
	return it.index
}

// Section deduplicates and orders the values of one constant kind.
type Section[T comparable] struct {
	name     string
	less     func(a, b T) bool
	mu       sync.Mutex
	items    map[T]*Item[T]
	ordered  []*Item[T]
	prepared atomic.Bool
}

// New returns an empty section. The less function must be a strict total
// order over T; it determines the final index order.
func New[T comparable](name string, less func(a, b T) bool) *Section[T] {
	return &Section[T]{
		name:  name,
		less:  less,
		items: map[T]*Item[T]{},
	}
}

// Name returns the section name, e.g. "string_ids".
func (s *Section[T]) Name() string { return s.name }

// Intern adds v to the section unless an equal value is already present and
// returns the handle for v. It is safe for concurrent use.
func (s *Section[T]) Intern(v T) *Item[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared.Load() {
		errz.Invariantf("%s: already prepared", s.name)
	}
	if it, ok := s.items[v]; ok {
		return it
	}
	it := &Item[T]{Value: v, index: -1}
	s.items[v] = it
	return it
}

// Prepare freezes the section and assigns indices. Calling it again is a
// no-op.
func (s *Section[T]) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared.Load() {
		return
	}
	ordered := make([]*Item[T], 0, len(s.items))
	for _, it := range s.items {
		ordered = append(ordered, it)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return s.less(ordered[i].Value, ordered[j].Value)
	})
	for i, it := range ordered {
		it.index = i
	}
	s.ordered = ordered
	s.prepared.Store(true)
}

// Prepared reports whether Prepare has run.
func (s *Section[T]) Prepared() bool {
	return s.prepared.Load()
}

// IndexOf returns the index of v. It panics if the section is not prepared or
// v was never interned.
func (s *Section[T]) IndexOf(v T) int {
	idx, ok := s.Find(v)
	if !ok {
		errz.Invariantf("%s: not found: %v", s.name, v)
	}
	return idx
}

// Find returns the index of v and whether it is present. It panics if the
// section is not prepared.
func (s *Section[T]) Find(v T) (int, bool) {
	// Lookups after Prepare read an immutable map and take no lock.
	if !s.prepared.Load() {
		errz.Invariantf("%s: not prepared", s.name)
	}
	it, ok := s.items[v]
	if !ok {
		return -1, false
	}
	return it.index, true
}

// Len returns the number of distinct values.
func (s *Section[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Values returns the values in index order. It panics before preparation.
func (s *Section[T]) Values() []T {
	if !s.prepared.Load() {
		errz.Invariantf("%s: not prepared", s.name)
	}
	values := make([]T, len(s.ordered))
	for i, it := range s.ordered {
		values[i] = it.Value
	}
	return values
}
