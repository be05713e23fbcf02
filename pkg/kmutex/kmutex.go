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

// Package kmutex implements named, robust, optionally priority-inheriting
// mutexes shared across threads and teams via numeric ids.
//
// A Table owns a fixed-capacity array of mutex slots. Ids are generation
// tagged: a reused slot never hands out an id that a stale handle could
// alias. Robustness follows POSIX robust mutex semantics: if a holder dies,
// the next acquirer is granted ownership with an owner-death status and must
// call MarkConsistent before releasing, otherwise the mutex is permanently
// poisoned. Priority inheritance is single-level: a holder is boosted to the
// highest priority among its waiters, but the boost is not propagated to a
// further lock the holder itself may block on.
//
// Lock ordering, always acquired in this sequence and never reversed:
//
//	Table.mu -> one entry.mu -> a Thread's scheduler lock
//
// At most one entry lock is held at a time.
package kmutex

// ID identifies a mutex. An ID is slot index + generation*capacity, so a
// deleted mutex's id never aliases the slot's next occupant.
type ID int32

// Flags configure a mutex at creation time.
type Flags uint32

const (
	// Recursive allows the holder to re-acquire the mutex, nesting
	// releases.
	Recursive Flags = 1 << iota

	// PriorityInheritance boosts the holder to the highest priority among
	// the mutex's waiters.
	PriorityInheritance
)

// MaxNameLen is the maximum length of a mutex name. Longer names are
// truncated.
const MaxNameLen = 32

// RecoveryState tracks robust-mutex recovery.
type RecoveryState int32

const (
	// RecoveryNormal is the ordinary state.
	RecoveryNormal RecoveryState = iota

	// RecoveryNeedsRecovery is entered when a holder dies. The next
	// acquirer observes an owner-death status and must call
	// MarkConsistent.
	RecoveryNeedsRecovery

	// RecoveryNotRecoverable is entered when a mutex in
	// RecoveryNeedsRecovery is released without MarkConsistent. It is
	// terminal until the mutex is deleted.
	RecoveryNotRecoverable
)

// String implements fmt.Stringer.
func (r RecoveryState) String() string {
	switch r {
	case RecoveryNormal:
		return "normal"
	case RecoveryNeedsRecovery:
		return "needs-recovery"
	case RecoveryNotRecoverable:
		return "not-recoverable"
	default:
		return "unknown"
	}
}
