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
	"strings"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
)

// Info describes a mutex.
type Info struct {
	ID   ID
	Name string

	// Team is the owning team's id.
	Team sched.TeamID

	// Holder is the current holder's thread id, or -1.
	Holder sched.ThreadID

	// Recursion is the current nesting depth; 0 if the mutex is free.
	Recursion int32

	Flags Flags
}

// WaiterInfo describes one queued waiter.
type WaiterInfo struct {
	Thread   sched.ThreadID
	Priority int32
}

// State is a full dump of one mutex, for debugging.
type State struct {
	Info

	Recovery RecoveryState

	// MaxWaiterPriority is the cached priority-inheritance maximum, -1 if
	// unused.
	MaxWaiterPriority int32

	// Waiters lists queued waiters in wake order.
	Waiters []WaiterInfo
}

// Preconditions: e.mu must be held; e.id >= 0.
func (e *entry) infoLocked() Info {
	info := Info{
		ID:        ID(e.id),
		Name:      e.name,
		Team:      e.ownerTeam.ID(),
		Holder:    -1,
		Recursion: e.recursion,
		Flags:     e.flags,
	}
	if e.holder != nil {
		info.Holder = e.holder.ID()
	}
	return info
}

// GetInfo returns a mutex's description.
func (ta *Table) GetInfo(id ID) (Info, error) {
	e := ta.slotFor(id)
	if e == nil {
		return Info{}, kernelerr.EINVAL
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != int32(id) {
		return Info{}, kernelerr.EINVAL
	}
	return e.infoLocked(), nil
}

// Filter selects mutexes for Mutexes. The zero value matches everything.
type Filter struct {
	// Team, if nonzero, restricts the listing to mutexes owned by that
	// team.
	Team sched.TeamID

	// Name, if nonempty, restricts the listing to mutexes whose name
	// contains it.
	Name string
}

// Mutexes lists all live mutexes matching the filter. This is a debugging
// path; the listing is not an atomic snapshot of the table.
func (ta *Table) Mutexes(f Filter) []Info {
	var infos []Info
	for i := range ta.slots {
		e := &ta.slots[i]
		e.mu.Lock()
		if e.id >= 0 &&
			(f.Team == 0 || e.ownerTeam.ID() == f.Team) &&
			(f.Name == "" || strings.Contains(e.name, f.Name)) {
			infos = append(infos, e.infoLocked())
		}
		e.mu.Unlock()
	}
	return infos
}

// Dump returns a mutex's full state, including its queued waiters.
func (ta *Table) Dump(id ID) (State, error) {
	e := ta.slotFor(id)
	if e == nil {
		return State{}, kernelerr.EINVAL
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != int32(id) {
		return State{}, kernelerr.EINVAL
	}
	st := State{
		Info:              e.infoLocked(),
		Recovery:          e.recovery,
		MaxWaiterPriority: e.maxWaiterPriority.Load(),
	}
	for w := e.waiters.Front(); w != nil; w = w.Next() {
		st.Waiters = append(st.Waiters, WaiterInfo{
			Thread:   w.thread.ID(),
			Priority: w.thread.EffectivePriority(),
		})
	}
	return st, nil
}
