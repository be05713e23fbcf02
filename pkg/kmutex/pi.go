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

// Priority inheritance.
//
// The policy: a holder's effective priority is the maximum of its base
// priority and, for every priority-inheriting mutex it holds, that mutex's
// maxWaiterPriority. Nothing is tracked incrementally across entries;
// sched.Thread.RecalculatePriority recomputes the maximum on demand by
// walking the holder's held list, which is bounded by the small number of
// locks a thread holds at once.
//
// Inheritance is single-level: if a boosted holder itself blocks on a
// further mutex, the boost is not propagated to that mutex's holder. This is
// a documented limitation, not a defect.

// updateMaxWaiterLocked recomputes maxWaiterPriority as the highest
// effective priority among currently queued waiters, or -1 if there are
// none.
//
// Preconditions: e.mu must be held; e was created with PriorityInheritance.
func (e *entry) updateMaxWaiterLocked() {
	max := int32(-1)
	for w := e.waiters.Front(); w != nil; w = w.Next() {
		if p := w.thread.EffectivePriority(); p > max {
			max = p
		}
	}
	e.maxWaiterPriority.Store(max)
}
