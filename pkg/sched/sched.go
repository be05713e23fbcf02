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

// Package sched models the thread and scheduler substrate consumed by the
// mutex subsystem: teams and threads with reference lookup, interruptible
// blocking with distinct wake reasons, and priority boosting for priority
// inheritance. Blocking is expressed as a select over channels, which is the
// natural translation of a kernel's block/unblock-with-status calls into a
// Go-based kernel.
package sched

import (
	"runtime"

	"kmutex.dev/kmutex/pkg/sync"
)

// ThreadID uniquely identifies a thread within a TaskSet.
type ThreadID int32

// TeamID uniquely identifies a team (process) within a TaskSet.
type TeamID int32

// Scheduling priorities. Higher values are more urgent.
const (
	PriorityIdle     int32 = 0
	PriorityLow      int32 = 5
	PriorityNormal   int32 = 10
	PriorityDisplay  int32 = 15
	PriorityUrgent   int32 = 110
	PriorityRealTime int32 = 120
)

// Team represents a collection of threads sharing an address space.
type Team struct {
	ts   *TaskSet
	id   TeamID
	name string

	// privileged marks the system team. Objects owned by it are protected
	// from unprivileged syscall-level callers.
	privileged bool
}

// ID returns the team's ID.
func (tm *Team) ID() TeamID { return tm.id }

// Name returns the team's name.
func (tm *Team) Name() string { return tm.name }

// Privileged returns true if this is the system team.
func (tm *Team) Privileged() bool { return tm.privileged }

// TaskSet tracks all teams and threads and stands in for the scheduler's
// global state.
type TaskSet struct {
	mu sync.Mutex

	teams   map[TeamID]*Team
	threads map[ThreadID]*Thread

	lastTeamID   TeamID
	lastThreadID ThreadID

	// systemTeam is created with the TaskSet and owns kernel-internal
	// objects. Immutable.
	systemTeam *Team
}

// NewTaskSet returns a TaskSet with the system team already registered.
func NewTaskSet() *TaskSet {
	ts := &TaskSet{
		teams:   make(map[TeamID]*Team),
		threads: make(map[ThreadID]*Thread),
	}
	ts.systemTeam = ts.newTeam("system", true)
	return ts
}

// SystemTeam returns the privileged system team.
func (ts *TaskSet) SystemTeam() *Team { return ts.systemTeam }

// NewTeam creates and registers an unprivileged team.
func (ts *TaskSet) NewTeam(name string) *Team {
	return ts.newTeam(name, false)
}

func (ts *TaskSet) newTeam(name string, privileged bool) *Team {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.lastTeamID++
	tm := &Team{
		ts:         ts,
		id:         ts.lastTeamID,
		name:       name,
		privileged: privileged,
	}
	ts.teams[tm.id] = tm
	return tm
}

// NewThread creates and registers a thread in the given team with the given
// base priority.
func (ts *TaskSet) NewThread(tm *Team, priority int32) *Thread {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.lastThreadID++
	t := &Thread{
		ts:                ts,
		id:                ts.lastThreadID,
		team:              tm,
		basePriority:      priority,
		effectivePriority: priority,
		interrupt:         make(chan struct{}, 1),
	}
	t.blockReason.Store(-1)
	ts.threads[t.id] = t
	return t
}

// LookupTeam returns the team with the given ID, or nil.
func (ts *TaskSet) LookupTeam(id TeamID) *Team {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.teams[id]
}

// LookupThread returns the thread with the given ID, or nil.
func (ts *TaskSet) LookupThread(id ThreadID) *Thread {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.threads[id]
}

// RemoveThread unregisters an exited thread. The mutex subsystem's thread
// exit hook must run first so that held locks are recovered.
func (ts *TaskSet) RemoveThread(t *Thread) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.threads, t.id)
}

// RemoveTeam unregisters an exited team.
func (ts *TaskSet) RemoveTeam(tm *Team) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.teams, tm.id)
}

// Reschedule requests a scheduling decision. In the modeled scheduler it
// yields the current goroutine; a boosted thread running on another core is
// picked up at that core's next natural scheduling decision, no cross-core
// interrupt is sent.
func (ts *TaskSet) Reschedule() {
	runtime.Gosched()
}
