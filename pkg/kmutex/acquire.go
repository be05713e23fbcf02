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
	"time"

	"github.com/sirupsen/logrus"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
)

// TimeoutMode selects how a blocking acquire bounds its wait.
type TimeoutMode uint32

const (
	// TimeoutNone waits unboundedly.
	TimeoutNone TimeoutMode = iota

	// TimeoutRelative waits at most a duration.
	TimeoutRelative

	// TimeoutAbsolute waits until a point in time.
	TimeoutAbsolute
)

// ReleaseFlags modify Release behavior.
type ReleaseFlags uint32

const (
	// DoNotReschedule suppresses the reschedule request that normally
	// follows an ownership transfer.
	DoNotReschedule ReleaseFlags = 1 << iota
)

// TryAcquire attempts to acquire the mutex without blocking.
//
// It returns nil on acquisition, kernelerr.EOWNERDEAD on acquisition of a
// mutex whose previous holder died (the caller must restore consistency and
// call MarkConsistent), kernelerr.EAGAIN if the mutex is held by another
// thread, kernelerr.EDEADLK if the caller already holds a non-recursive
// mutex, and kernelerr.ENOTRECOVERABLE if the mutex has been poisoned.
func (ta *Table) TryAcquire(t *sched.Thread, id ID) error {
	return ta.tryAcquire(t, id, false)
}

func (ta *Table) tryAcquire(t *sched.Thread, id ID, checkPerm bool) error {
	e := ta.slotFor(id)
	if e == nil {
		return kernelerr.EINVAL
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != int32(id) {
		return kernelerr.EINVAL
	}
	if checkPerm && e.ownerTeam.Privileged() && !t.Team().Privileged() {
		return kernelerr.EACCES
	}
	return e.tryAcquireLocked(t)
}

// tryAcquireLocked implements the non-blocking half of the acquire state
// machine. It returns kernelerr.EAGAIN iff the mutex is held by another
// thread; every other outcome is final.
//
// Preconditions: e.mu must be held; e.id >= 0.
func (e *entry) tryAcquireLocked(t *sched.Thread) error {
	if e.holder == nil {
		if e.recovery == RecoveryNotRecoverable {
			// A poisoned mutex is never granted, even though no
			// thread holds it.
			return kernelerr.ENOTRECOVERABLE
		}
		e.holder = t
		e.recursion = 1
		t.AddHeldMutex(e)
		if e.recovery == RecoveryNeedsRecovery {
			return kernelerr.EOWNERDEAD
		}
		return nil
	}
	if e.holder == t {
		if e.flags&Recursive == 0 {
			return kernelerr.EDEADLK
		}
		e.recursion++
		return nil
	}
	return kernelerr.EAGAIN
}

// Acquire blocks until the mutex is acquired, the calling thread is
// interrupted, or the mutex is deleted. Error returns are those of
// TryAcquire, plus kernelerr.EINTR.
func (ta *Table) Acquire(t *sched.Thread, id ID) error {
	return ta.acquireEtc(t, id, false, TimeoutNone, 0, time.Time{})
}

// AcquireTimeout is like Acquire with the wait bounded by a relative
// timeout. A zero or negative timeout on a contended mutex fails immediately
// with kernelerr.EAGAIN; an expired wait fails with kernelerr.ETIMEDOUT.
func (ta *Table) AcquireTimeout(t *sched.Thread, id ID, timeout time.Duration) error {
	return ta.acquireEtc(t, id, false, TimeoutRelative, timeout, time.Time{})
}

// AcquireDeadline is like Acquire with the wait bounded by an absolute
// deadline. A deadline already in the past on a contended mutex fails
// immediately with kernelerr.ETIMEDOUT.
func (ta *Table) AcquireDeadline(t *sched.Thread, id ID, deadline time.Time) error {
	return ta.acquireEtc(t, id, false, TimeoutAbsolute, 0, deadline)
}

func (ta *Table) acquireEtc(t *sched.Thread, id ID, checkPerm bool, mode TimeoutMode, timeout time.Duration, deadline time.Time) error {
	e := ta.slotFor(id)
	if e == nil {
		return kernelerr.EINVAL
	}
	e.mu.Lock()
	if e.id != int32(id) {
		e.mu.Unlock()
		return kernelerr.EINVAL
	}
	if checkPerm && e.ownerTeam.Privileged() && !t.Team().Privileged() {
		e.mu.Unlock()
		return kernelerr.EACCES
	}
	err := e.tryAcquireLocked(t)
	if !kernelerr.Equals(kernelerr.EAGAIN, err) {
		e.mu.Unlock()
		return err
	}

	// Held by another thread; prepare to wait.
	switch mode {
	case TimeoutNone:
	case TimeoutRelative:
		if timeout <= 0 {
			e.mu.Unlock()
			return kernelerr.EAGAIN
		}
	case TimeoutAbsolute:
		timeout = time.Until(deadline)
		if timeout <= 0 {
			e.mu.Unlock()
			return kernelerr.ETIMEDOUT
		}
	default:
		e.mu.Unlock()
		return kernelerr.EINVAL
	}
	if t.Interrupted() {
		e.mu.Unlock()
		return kernelerr.EINTR
	}

	w := waiter{thread: t, queued: true, ch: make(chan error, 1)}
	e.waiters.PushBack(&w)
	if e.flags&PriorityInheritance != 0 {
		e.updateMaxWaiterLocked()
		e.holder.Boost(e.maxWaiterPriority.Load())
	}

	// Commit to blocking before dropping the entry lock, so a releaser
	// scanning the queue cannot mistake us for a waiter that has already
	// woken and skip us.
	t.PrepareToBlock(int32(e.id))
	e.mu.Unlock()

	var blockErr error
	if mode == TimeoutNone {
		blockErr = t.Block(w.ch)
	} else {
		blockErr = t.BlockWithTimeout(w.ch, timeout)
	}

	e.mu.Lock()
	if w.queued {
		// The wakeup was not an ownership transfer (timeout or
		// interrupt): dequeue ourselves. The departing waiter may have
		// been the priority maximum, so recompute the holder's boost.
		e.waiters.Remove(&w)
		w.queued = false
		if e.flags&PriorityInheritance != 0 {
			e.updateMaxWaiterLocked()
			if e.holder != nil {
				e.holder.RecalculatePriority()
			}
		}
		e.mu.Unlock()
		return blockErr
	}
	e.mu.Unlock()

	// We were dequeued by a releaser or by teardown: the status it
	// delivered is authoritative, whether or not the block call saw it
	// before a timeout or interrupt fired.
	select {
	case st := <-w.ch:
		if kernelerr.Equals(kernelerr.EINTR, blockErr) {
			// The block consumed an interrupt that this call does
			// not act on; leave it pending.
			t.Interrupt()
		}
		return st
	default:
		return blockErr
	}
}

// Release releases the mutex. Only the current holder may call it. On a
// recursive mutex, recursion is unnested one level per call; the last
// release transfers ownership to the first eligible waiter or leaves the
// mutex free.
//
// Releasing a mutex in the needs-recovery state without having called
// MarkConsistent permanently poisons it: all waiters are woken with
// kernelerr.ENOTRECOVERABLE and no later acquire can succeed until the mutex
// is deleted.
func (ta *Table) Release(t *sched.Thread, id ID) error {
	return ta.ReleaseEtc(t, id, 0)
}

// ReleaseEtc is Release with flags.
func (ta *Table) ReleaseEtc(t *sched.Thread, id ID, flags ReleaseFlags) error {
	e := ta.slotFor(id)
	if e == nil {
		return kernelerr.EINVAL
	}
	e.mu.Lock()
	if e.id != int32(id) {
		e.mu.Unlock()
		return kernelerr.EINVAL
	}
	if e.holder != t {
		e.mu.Unlock()
		return kernelerr.EPERM
	}
	if e.recursion > 1 {
		e.recursion--
		e.mu.Unlock()
		return nil
	}

	t.RemoveHeldMutex(e)

	if e.recovery == RecoveryNeedsRecovery {
		// Released without MarkConsistent: poison the mutex. Waiters
		// are woken with an error rather than granted ownership.
		e.recovery = RecoveryNotRecoverable
		e.holder = nil
		e.recursion = 0
		for w := e.waiters.Front(); w != nil; w = e.waiters.Front() {
			e.waiters.Remove(w)
			w.queued = false
			w.ch <- kernelerr.ENOTRECOVERABLE
		}
		e.maxWaiterPriority.Store(-1)
		logrus.Warnf("kmutex: mutex %d (%q) released while inconsistent, now unrecoverable", id, e.name)
		t.RecalculatePriority()
		e.mu.Unlock()
		return nil
	}

	woke := e.transferLocked(nil)
	e.mu.Unlock()

	// The releaser may still hold other priority-inheriting mutexes; its
	// own boost must be recomputed now that this one no longer counts.
	t.RecalculatePriority()
	if woke != nil && flags&DoNotReschedule == 0 {
		ta.ts.Reschedule()
	}
	return nil
}

// transferLocked hands ownership to the first queued waiter whose thread is
// still blocked, delivering status as its wake status. Waiters that have
// already lost a race against a timeout or interrupt are skipped; they will
// dequeue themselves. If no eligible waiter exists the mutex becomes free.
// Returns the new holder, or nil.
//
// Preconditions: e.mu must be held; e.id >= 0; the previous holder has been
// fully detached.
func (e *entry) transferLocked(status error) *sched.Thread {
	for w := e.waiters.Front(); w != nil; w = w.Next() {
		if !w.thread.IsBlocked() {
			continue
		}
		e.waiters.Remove(w)
		w.queued = false
		e.holder = w.thread
		e.recursion = 1
		w.thread.AddHeldMutex(e)
		if e.flags&PriorityInheritance != 0 {
			e.updateMaxWaiterLocked()
			if p := e.maxWaiterPriority.Load(); p >= 0 {
				w.thread.Boost(p)
			}
		}
		w.ch <- status
		return w.thread
	}

	e.holder = nil
	e.recursion = 0
	if e.flags&PriorityInheritance != 0 {
		e.updateMaxWaiterLocked()
	}
	return nil
}

// MarkConsistent restores a mutex acquired with an owner-death status to the
// normal state. A poisoned mutex reports kernelerr.ENOTRECOVERABLE no matter
// who calls. Otherwise only the current holder may call it, and calling it
// on a mutex that does not need recovery fails with kernelerr.EINVAL.
func (ta *Table) MarkConsistent(t *sched.Thread, id ID) error {
	e := ta.slotFor(id)
	if e == nil {
		return kernelerr.EINVAL
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != int32(id) {
		return kernelerr.EINVAL
	}
	if e.recovery == RecoveryNotRecoverable {
		// A poisoned mutex has no holder, so this must precede the
		// holder check to ever be reported.
		return kernelerr.ENOTRECOVERABLE
	}
	if e.holder != t {
		return kernelerr.EPERM
	}
	if e.recovery != RecoveryNeedsRecovery {
		return kernelerr.EINVAL
	}
	e.recovery = RecoveryNormal
	return nil
}
