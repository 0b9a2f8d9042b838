// Package lruset provides a set that keeps its items in access order.
//
// The least recently used item is the oldest one. Items are moved to the
// newest position on Push and Touch. The set itself is not synchronized.
package lruset

import "container/list"

// Set an access ordered set with an optional capacity
type Set[K comparable] struct {
	capacity int
	order    *list.List
	items    map[K]*list.Element
}

// New creates a set. A capacity <= 0 means unbounded, Push will never evict.
func New[K comparable](capacity int) *Set[K] {
	return &Set[K]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element),
	}
}

func (s *Set[K]) Capacity() int {
	return s.capacity
}

func (s *Set[K]) Len() int {
	return s.order.Len()
}

func (s *Set[K]) Contains(k K) bool {
	_, ok := s.items[k]
	return ok
}

// Full true if the set holds at least capacity items
func (s *Set[K]) Full() bool {
	return s.capacity > 0 && s.order.Len() >= s.capacity
}

// Touch marks k as most recently used, returns false if k is unknown
func (s *Set[K]) Touch(k K) bool {
	e, ok := s.items[k]
	if !ok {
		return false
	}
	s.order.MoveToBack(e)
	return true
}

// Push inserts k or marks it as most recently used. If a new item would exceed
// the capacity, the oldest item is removed before and returned as evicted.
func (s *Set[K]) Push(k K) (evicted []K) {
	if s.Touch(k) {
		return nil
	}
	if s.Full() {
		if o, ok := s.RemoveOldest(); ok {
			evicted = append(evicted, o)
		}
	}
	s.items[k] = s.order.PushBack(k)
	return evicted
}

// Append inserts k as most recently used without any eviction
func (s *Set[K]) Append(k K) {
	if s.Touch(k) {
		return
	}
	s.items[k] = s.order.PushBack(k)
}

func (s *Set[K]) Remove(k K) bool {
	e, ok := s.items[k]
	if !ok {
		return false
	}
	s.order.Remove(e)
	delete(s.items, k)
	return true
}

// Oldest returns the least recently used item
func (s *Set[K]) Oldest() (K, bool) {
	e := s.order.Front()
	if e == nil {
		var zero K
		return zero, false
	}
	return e.Value.(K), true
}

func (s *Set[K]) RemoveOldest() (K, bool) {
	k, ok := s.Oldest()
	if ok {
		s.Remove(k)
	}
	return k, ok
}

// Shrink removes the oldest items until at most size items are left and
// returns them, oldest first.
func (s *Set[K]) Shrink(size int) []K {
	if size < 0 {
		size = 0
	}
	var removed []K
	for s.order.Len() > size {
		k, _ := s.RemoveOldest()
		removed = append(removed, k)
	}
	return removed
}

// Items all items, oldest first
func (s *Set[K]) Items() []K {
	res := make([]K, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(K))
	}
	return res
}
