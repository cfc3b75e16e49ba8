package stream

import (
	"sort"
	"sync"
)

// Subject is a hot, push-based stream of values. Producers call Publish and
// every registered subscriber callback runs synchronously on the producer's
// goroutine, in subscription order. There is no buffering: a value published
// before Subscribe is never replayed.
//
// Subscribers that need to decouple from the producer should hand the value
// off to their own goroutine or channel inside the callback.
type Subject[T any] struct {
	mtx  sync.Mutex
	subs map[int]func(T)
	next int
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subs: make(map[int]func(T)),
	}
}

// Subscribe registers fn to be invoked for every subsequently published value.
// The returned cancel function removes the subscription; it is safe to call
// more than once.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mtx.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mtx.Unlock()

	return func() {
		s.mtx.Lock()
		delete(s.subs, id)
		s.mtx.Unlock()
	}
}

// Publish delivers v to all current subscribers on the caller's goroutine.
// Callbacks registered while a publish is in flight receive only later values.
func (s *Subject[T]) Publish(v T) {
	s.mtx.Lock()
	// subscription ids increase monotonically, so sorting them restores
	// subscription order
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mtx.Unlock()

	// run outside the lock so a callback may subscribe, cancel or publish
	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of active subscriptions.
func (s *Subject[T]) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.subs)
}
