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

import (
	"sync/atomic"
	"time"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sync"
)

// Thread represents a schedulable thread.
type Thread struct {
	ts   *TaskSet
	id   ThreadID
	team *Team

	// mu is the thread's scheduler lock. It is ordered after any single
	// mutex entry lock; see the kmutex package documentation.
	mu sync.Mutex

	// basePriority is the priority assigned by the application.
	basePriority int32

	// effectivePriority is basePriority, possibly raised by priority
	// inheritance.
	effectivePriority int32

	// boosted is true if effectivePriority currently exceeds basePriority
	// because of priority inheritance.
	boosted bool

	// held is the intrusive list of locks this thread currently holds,
	// most recently acquired first.
	held heldMutexList

	// interrupt is posted to deliver an interrupt/signal to a blocked or
	// about-to-block thread.
	interrupt chan struct{}

	// blocked is true from PrepareToBlock until the matching Block call
	// returns. It is read by lock releasers to skip waiters that have
	// already woken but not yet dequeued themselves.
	blocked atomic.Bool

	// blockReason is an opaque identifier of the object the thread is
	// blocked on, or -1. Exposed for introspection only.
	blockReason atomic.Int32
}

// ID returns the thread's ID.
func (t *Thread) ID() ThreadID { return t.id }

// Team returns the thread's team.
func (t *Thread) Team() *Team { return t.team }

// Priority returns the thread's base priority.
func (t *Thread) Priority() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.basePriority
}

// EffectivePriority returns the thread's current scheduling priority,
// including any inherited boost.
func (t *Thread) EffectivePriority() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effectivePriority
}

// SetPriority changes the thread's base priority, preserving any inherited
// boost that still exceeds it.
func (t *Thread) SetPriority(priority int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.basePriority = priority
	if !t.boosted {
		t.effectivePriority = priority
		return
	}
	t.recalculateLocked()
}

// Interrupt delivers an interrupt to the thread. If the thread is blocked it
// wakes with kernelerr.EINTR; otherwise the interrupt stays pending and is
// consumed by the next blocking call.
func (t *Thread) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// Interrupted returns true if an interrupt is pending.
func (t *Thread) Interrupted() bool {
	return len(t.interrupt) != 0
}

// IsBlocked returns true if the thread has committed to blocking and the
// blocking call has not yet returned. The result may be stale by the time it
// is observed; callers use it only as a hint and must reconcile against
// their own queue state.
func (t *Thread) IsBlocked() bool {
	return t.blocked.Load()
}

// BlockReason returns the identifier recorded by the last PrepareToBlock,
// or -1 if the thread is not blocked.
func (t *Thread) BlockReason() int32 {
	return t.blockReason.Load()
}

// PrepareToBlock commits the thread to an imminent Block or BlockWithTimeout
// call and records what it will block on. It must be called before the
// caller publishes its wait (for example, before dropping the lock guarding
// the queue it enqueued itself on); otherwise a waker could observe the
// thread as not blocked and pass it over.
func (t *Thread) PrepareToBlock(reason int32) {
	t.blockReason.Store(reason)
	t.blocked.Store(true)
}

// endBlock reverses PrepareToBlock.
func (t *Thread) endBlock() {
	t.blocked.Store(false)
	t.blockReason.Store(-1)
}

// Block blocks until a wake status is delivered on ch or the thread is
// interrupted. A status received on ch is returned as-is; an interrupt
// returns kernelerr.EINTR.
//
// Preconditions: PrepareToBlock has been called.
func (t *Thread) Block(ch <-chan error) error {
	defer t.endBlock()
	select {
	case err := <-ch:
		return err
	case <-t.interrupt:
		return kernelerr.EINTR
	}
}

// BlockWithTimeout is like Block, but additionally wakes with
// kernelerr.ETIMEDOUT once timeout has elapsed.
//
// Preconditions: PrepareToBlock has been called.
func (t *Thread) BlockWithTimeout(ch <-chan error, timeout time.Duration) error {
	defer t.endBlock()
	if timeout <= 0 {
		return kernelerr.ETIMEDOUT
	}
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case err := <-ch:
		return err
	case <-t.interrupt:
		return kernelerr.EINTR
	case <-tm.C:
		return kernelerr.ETIMEDOUT
	}
}

// AddHeldMutex links m at the head of t's held list.
//
// Preconditions: m is not linked into any held list. The caller may hold
// m's lock.
func (t *Thread) AddHeldMutex(m HeldMutex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held.PushFront(m)
}

// RemoveHeldMutex unlinks m from t's held list. It is a no-op if m is not on
// t's list, even if m is linked into some other thread's list.
func (t *Thread) RemoveHeldMutex(m HeldMutex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held.Remove(m)
}

// FrontHeldMutex returns the most recently acquired lock on t's held list,
// or nil. Exit paths use it to drain the list one lock at a time, since the
// lock ordering forbids holding the scheduler lock while taking a lock
// object's own lock.
func (t *Thread) FrontHeldMutex() HeldMutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held.Front()
}

// Boost raises the thread's effective priority to at least priority on
// behalf of a lock waiter. It never lowers the priority; restoration happens
// via RecalculatePriority once the boost is no longer required.
func (t *Thread) Boost(priority int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if priority <= t.effectivePriority {
		return
	}
	t.boosted = true
	t.effectivePriority = priority
}

// RecalculatePriority recomputes the thread's effective priority as the
// maximum of its base priority and the waiter priorities of all held
// priority-donating locks. It is a no-op if the thread was never boosted.
func (t *Thread) RecalculatePriority() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recalculateLocked()
}

// Preconditions: t.mu must be held.
func (t *Thread) recalculateLocked() {
	if !t.boosted {
		return
	}
	max := t.basePriority
	for m := t.held.Front(); m != nil; m = m.Next() {
		// WaiterPriority is read without the lock's own lock; the value
		// is updated atomically and a stale read self-corrects on the
		// next waiter-queue event.
		if p := m.WaiterPriority(); p > max {
			max = p
		}
	}
	t.effectivePriority = max
	if max == t.basePriority {
		t.boosted = false
	}
}
