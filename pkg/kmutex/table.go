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
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
	"kmutex.dev/kmutex/pkg/sync"
)

// DefaultCapacity is a reasonable table capacity for a whole system.
const DefaultCapacity = 4096

// entry is one slot in the table. A slot is either free, in which case it
// sits on the table's free list and id is -1, or used, in which case it
// represents a live mutex.
type entry struct {
	sched.HeldMutexEntry

	// table and index are immutable.
	table *Table
	index int32

	// nextFreeIndex chains the table's free list; -1 terminates it. It is
	// meaningful only while the slot is free. Guarded by table.mu.
	nextFreeIndex int32

	// nextID is the id this slot will assume on its next allocation.
	// Every free bumps it by the table capacity, so the slot index stays
	// congruent while the generation advances. Guarded by table.mu.
	nextID int32

	// ownerNext and ownerPrev link the entry into its owner team's
	// ownership list. Guarded by table.mu.
	ownerNext *entry
	ownerPrev *entry

	// mu is the entry lock. It guards all fields below and the contained
	// waiters' queued flags.
	mu sync.Mutex

	// id is the entry's current id, or -1 while the slot is free.
	id int32

	name      string
	flags     Flags
	ownerTeam *sched.Team

	// holder is the owning thread; nil iff recursion == 0.
	holder    *sched.Thread
	recursion int32

	recovery RecoveryState

	// waiters are threads blocked in acquire, FIFO by enqueue order.
	waiters waiterList

	// maxWaiterPriority is the highest effective priority among queued
	// waiters, or -1 if the queue is empty or the mutex does not inherit
	// priority. It is written under mu but read atomically by priority
	// recalculation without mu, so a stale read self-corrects on the next
	// waiter-queue event.
	maxWaiterPriority atomic.Int32
}

// WaiterPriority implements sched.HeldMutex.WaiterPriority.
func (e *entry) WaiterPriority() int32 {
	return e.maxWaiterPriority.Load()
}

// Table is the system-wide mutex table.
type Table struct {
	// ts is the thread/team substrate. Immutable.
	ts *sched.TaskSet

	// mu is the table lock. It guards the free list and the per-team
	// ownership lists. It is ordered before any entry lock.
	mu sync.Mutex

	// slots is the fixed-capacity slot arena. The slice itself is
	// immutable; slot contents are guarded as documented on entry.
	slots []entry

	// freeHead and freeTail index the FIFO free list; -1 when empty.
	// Freed slots are appended at the tail so that slot reuse, and with
	// it id reuse pressure, is delayed as long as possible.
	freeHead int32
	freeTail int32

	// owned maps a team to the head of its ownership list.
	owned map[sched.TeamID]*entry
}

// NewTable returns a Table with the given slot capacity, all slots free.
func NewTable(ts *sched.TaskSet, capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ta := &Table{
		ts:       ts,
		slots:    make([]entry, capacity),
		freeHead: 0,
		freeTail: int32(capacity - 1),
		owned:    make(map[sched.TeamID]*entry),
	}
	for i := range ta.slots {
		e := &ta.slots[i]
		e.table = ta
		e.index = int32(i)
		e.id = -1
		e.nextID = int32(i)
		e.nextFreeIndex = int32(i) + 1
		e.maxWaiterPriority.Store(-1)
	}
	ta.slots[capacity-1].nextFreeIndex = -1
	return ta
}

// Capacity returns the table's slot capacity.
func (ta *Table) Capacity() int {
	return len(ta.slots)
}

// slotFor resolves an id to its slot without validating liveness; callers
// must re-check e.id under the entry lock.
func (ta *Table) slotFor(id ID) *entry {
	if id < 0 {
		return nil
	}
	return &ta.slots[int32(id)%int32(len(ta.slots))]
}

// Preconditions: ta.mu must be held.
func (ta *Table) popFreeLocked() *entry {
	if ta.freeHead < 0 {
		return nil
	}
	e := &ta.slots[ta.freeHead]
	ta.freeHead = e.nextFreeIndex
	if ta.freeHead < 0 {
		ta.freeTail = -1
	}
	e.nextFreeIndex = -1
	return e
}

// Preconditions: ta.mu must be held.
func (ta *Table) pushFreeLocked(e *entry) {
	e.nextFreeIndex = -1
	if ta.freeTail < 0 {
		ta.freeHead = e.index
	} else {
		ta.slots[ta.freeTail].nextFreeIndex = e.index
	}
	ta.freeTail = e.index
}

// Preconditions: ta.mu must be held.
func (ta *Table) addOwnedLocked(tm *sched.Team, e *entry) {
	head := ta.owned[tm.ID()]
	e.ownerPrev = nil
	e.ownerNext = head
	if head != nil {
		head.ownerPrev = e
	}
	ta.owned[tm.ID()] = e
}

// Preconditions: ta.mu must be held; e is on its owner team's list.
func (ta *Table) removeOwnedLocked(e *entry) {
	if e.ownerPrev != nil {
		e.ownerPrev.ownerNext = e.ownerNext
	} else if ta.owned[e.ownerTeam.ID()] == e {
		if e.ownerNext == nil {
			delete(ta.owned, e.ownerTeam.ID())
		} else {
			ta.owned[e.ownerTeam.ID()] = e.ownerNext
		}
	}
	if e.ownerNext != nil {
		e.ownerNext.ownerPrev = e.ownerPrev
	}
	e.ownerNext = nil
	e.ownerPrev = nil
}

// Create allocates a new mutex owned by the given team and returns its id.
// It fails with kernelerr.ESRCH if the team is not registered and
// kernelerr.ENOSPC if all slots are in use. Names longer than MaxNameLen are
// truncated.
func (ta *Table) Create(name string, flags Flags, owner *sched.Team) (ID, error) {
	if owner == nil || ta.ts.LookupTeam(owner.ID()) != owner {
		return -1, kernelerr.ESRCH
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	ta.mu.Lock()
	e := ta.popFreeLocked()
	if e == nil {
		ta.mu.Unlock()
		logrus.Warnf("kmutex: table exhausted (%d slots)", len(ta.slots))
		return -1, kernelerr.ENOSPC
	}

	e.mu.Lock()
	e.id = e.nextID
	e.name = name
	e.flags = flags
	e.ownerTeam = owner
	e.holder = nil
	e.recursion = 0
	e.recovery = RecoveryNormal
	e.maxWaiterPriority.Store(-1)
	id := ID(e.id)
	e.mu.Unlock()

	ta.addOwnedLocked(owner, e)
	ta.mu.Unlock()
	return id, nil
}

// Delete destroys the mutex with the given id. All waiters are woken with
// kernelerr.EINVAL, and the slot's next id is advanced by the table capacity
// so no live handle can alias the next occupant.
func (ta *Table) Delete(id ID) error {
	return ta.deleteMutex(id, nil)
}

// deleteMutex implements Delete. If caller is non-nil it is a syscall-level
// deletion and mutexes owned by the system team are refused for unprivileged
// callers.
func (ta *Table) deleteMutex(id ID, caller *sched.Team) error {
	e := ta.slotFor(id)
	if e == nil {
		return kernelerr.EINVAL
	}

	ta.mu.Lock()
	e.mu.Lock()
	if e.id != int32(id) {
		e.mu.Unlock()
		ta.mu.Unlock()
		return kernelerr.EINVAL
	}
	if caller != nil && e.ownerTeam.Privileged() && !caller.Privileged() {
		e.mu.Unlock()
		ta.mu.Unlock()
		return kernelerr.EACCES
	}

	ta.removeOwnedLocked(e)
	ta.teardownLocked(e)
	e.mu.Unlock()
	ta.mu.Unlock()
	return nil
}

// teardownLocked destroys a live entry: wakes all waiters with an error,
// detaches it from its holder, invalidates the id and returns the slot to
// the free list with the generation bumped.
//
// Preconditions: ta.mu and e.mu must be held; e.id >= 0; e has been removed
// from its team's ownership list.
func (ta *Table) teardownLocked(e *entry) {
	for w := e.waiters.Front(); w != nil; w = e.waiters.Front() {
		e.waiters.Remove(w)
		w.queued = false
		w.ch <- kernelerr.EINVAL
	}
	e.maxWaiterPriority.Store(-1)

	if holder := e.holder; holder != nil {
		holder.RemoveHeldMutex(e)
		e.holder = nil
		e.recursion = 0
		if e.flags&PriorityInheritance != 0 {
			holder.RecalculatePriority()
		}
	}

	next := e.id + int32(len(ta.slots))
	if next < 0 {
		// Id space wrapped; restart this slot at generation zero.
		next = e.index
	}
	e.nextID = next
	e.id = -1
	e.name = ""
	e.flags = 0
	e.ownerTeam = nil
	e.recovery = RecoveryNormal
	ta.pushFreeLocked(e)
}

// Find returns the id of a mutex with the given name, or kernelerr.ENOENT.
// This is a management path: it scans linearly under each entry's own lock
// and makes no performance guarantee.
func (ta *Table) Find(name string) (ID, error) {
	for i := range ta.slots {
		e := &ta.slots[i]
		e.mu.Lock()
		if e.id >= 0 && e.name == name {
			id := ID(e.id)
			e.mu.Unlock()
			return id, nil
		}
		e.mu.Unlock()
	}
	return -1, kernelerr.ENOENT
}
