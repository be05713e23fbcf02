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
	"github.com/sirupsen/logrus"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
)

// ThreadExit recovers every mutex the dying thread still holds: each one is
// marked needs-recovery and handed to its first still-blocked waiter with an
// owner-death status, or left free with recovery pending. It must run before
// the thread is unregistered.
func (ta *Table) ThreadExit(t *sched.Thread) {
	died := 0
	for {
		// The held list is guarded by t's scheduler lock, which is
		// ordered after entry locks, so the head is read first and
		// revalidated under the entry lock.
		m := t.FrontHeldMutex()
		if m == nil {
			break
		}
		e := m.(*entry)

		e.mu.Lock()
		if e.id < 0 || e.holder != t {
			// Lost a race with concurrent teardown, which already
			// unlinked the entry from our held list before we took
			// its lock; the slot may even have been reused and
			// acquired by another thread. It is not ours to touch.
			e.mu.Unlock()
			continue
		}

		logrus.Warnf("kmutex: thread %d exiting while holding mutex %d (%q)", t.ID(), e.id, e.name)
		e.recovery = RecoveryNeedsRecovery
		e.recursion = 0
		e.holder = nil
		t.RemoveHeldMutex(e)
		e.transferLocked(kernelerr.EOWNERDEAD)
		e.mu.Unlock()
		died++
	}
	// The held list is empty now; drop any boost that the released
	// mutexes were sustaining.
	t.RecalculatePriority()
	if died > 0 {
		ta.ts.Reschedule()
	}
}

// TeamExit destroys every mutex still owned by the exiting team, exactly as
// Delete would.
func (ta *Table) TeamExit(tm *sched.Team) {
	for {
		ta.mu.Lock()
		e := ta.owned[tm.ID()]
		if e == nil {
			ta.mu.Unlock()
			return
		}
		e.mu.Lock()
		ta.removeOwnedLocked(e)
		ta.teardownLocked(e)
		e.mu.Unlock()
		ta.mu.Unlock()
	}
}
