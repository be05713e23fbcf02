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

package kmutex

import (
	"kmutex.dev/kmutex/pkg/sched"
)

// waiter represents one thread blocked in a contended acquire. It lives on
// the calling stack frame for the duration of that call, never on the heap
// beyond it.
type waiter struct {
	waiterEntry

	// thread is the blocked thread.
	thread *sched.Thread

	// queued is true while the waiter is linked into the entry's queue.
	// It is guarded by the entry's lock. A waiter that resumes and finds
	// queued still set was woken by something other than an ownership
	// transfer and must dequeue itself.
	queued bool

	// ch delivers the wake status: nil or kernelerr.EOWNERDEAD for an
	// ownership transfer, kernelerr.ENOTRECOVERABLE for a poisoned
	// release, kernelerr.EINVAL for teardown. It is buffered so wakers
	// never block on it.
	ch chan error
}

// waiterEntry links waiter into waiterList.
type waiterEntry struct {
	next *waiter
	prev *waiter
}

// Next returns the entry that follows e in the list.
func (e *waiterEntry) Next() *waiter { return e.next }

// Prev returns the entry that precedes e in the list.
func (e *waiterEntry) Prev() *waiter { return e.prev }

// waiterList is an intrusive list of waiters, FIFO by enqueue order. The
// zero value is an empty list ready to use. It is guarded by the lock of the
// entry that owns it.
type waiterList struct {
	head *waiter
	tail *waiter
}

// Empty returns true iff the list is empty.
func (l *waiterList) Empty() bool {
	return l.head == nil
}

// Front returns the first waiter in the list or nil.
func (l *waiterList) Front() *waiter {
	return l.head
}

// PushBack appends w to the list.
func (l *waiterList) PushBack(w *waiter) {
	w.next = nil
	w.prev = l.tail
	if l.tail != nil {
		l.tail.next = w
	} else {
		l.head = w
	}
	l.tail = w
}

// Remove unlinks w from the list in O(1).
func (l *waiterList) Remove(w *waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.next = nil
	w.prev = nil
}

// Reset resets the list to the empty state.
func (l *waiterList) Reset() {
	l.head = nil
	l.tail = nil
}
