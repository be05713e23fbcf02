// Copyright 2026 The kmutex Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

// HeldMutex is implemented by lock objects that can be linked into a
// Thread's held list. The linkage methods follow the intrusive list
// convention: entries carry their own links, so insertion and removal are
// O(1) and allocation-free.
type HeldMutex interface {
	// WaiterPriority returns the highest priority among the lock's queued
	// waiters, or -1 if there are none or the lock does not donate
	// priority. It is read during priority recalculation without the
	// lock's own lock held, so implementations must make it safe for
	// concurrent access; a stale value self-corrects on the next
	// waiter-queue event.
	WaiterPriority() int32

	Next() HeldMutex
	Prev() HeldMutex
	SetNext(HeldMutex)
	SetPrev(HeldMutex)
}

// HeldMutexEntry provides the linkage for HeldMutex implementations; it may
// be embedded to satisfy the linkage half of the interface.
type HeldMutexEntry struct {
	next HeldMutex
	prev HeldMutex
}

// Next returns the entry that follows e in the held list.
func (e *HeldMutexEntry) Next() HeldMutex { return e.next }

// Prev returns the entry that precedes e in the held list.
func (e *HeldMutexEntry) Prev() HeldMutex { return e.prev }

// SetNext assigns 'm' as the entry that follows e in the held list.
func (e *HeldMutexEntry) SetNext(m HeldMutex) { e.next = m }

// SetPrev assigns 'm' as the entry that precedes e in the held list.
func (e *HeldMutexEntry) SetPrev(m HeldMutex) { e.prev = m }

// heldMutexList is an intrusive list of HeldMutexes. The zero value is an
// empty list ready to use. It is guarded by the lock of the Thread that owns
// it.
type heldMutexList struct {
	head HeldMutex
	tail HeldMutex
}

// Empty returns true iff the list is empty.
func (l *heldMutexList) Empty() bool {
	return l.head == nil
}

// Front returns the first element of list l or nil.
func (l *heldMutexList) Front() HeldMutex {
	return l.head
}

// PushFront inserts the element m at the front of list l.
func (l *heldMutexList) PushFront(m HeldMutex) {
	m.SetNext(l.head)
	m.SetPrev(nil)
	if l.head != nil {
		l.head.SetPrev(m)
	} else {
		l.tail = m
	}
	l.head = m
}

// Remove removes m from list l. Removing an element that is not on l is a
// no-op: m's links alone cannot distinguish membership in l from membership
// in another thread's list, so membership is confirmed by walking l, which
// is bounded by the handful of locks a thread holds at once.
func (l *heldMutexList) Remove(m HeldMutex) {
	linked := false
	for e := l.head; e != nil; e = e.Next() {
		if e == m {
			linked = true
			break
		}
	}
	if !linked {
		return
	}

	prev := m.Prev()
	next := m.Next()
	if prev != nil {
		prev.SetNext(next)
	} else {
		l.head = next
	}
	if next != nil {
		next.SetPrev(prev)
	} else {
		l.tail = prev
	}
	m.SetNext(nil)
	m.SetPrev(nil)
}

// Reset resets list l to the empty state.
func (l *heldMutexList) Reset() {
	l.head = nil
	l.tail = nil
}
