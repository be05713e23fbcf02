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
	"encoding/binary"
	"time"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
	"kmutex.dev/kmutex/pkg/usermem"
)

// Syscall-facing variants of the table operations. They differ from the
// plain ones in three ways: names and info structures cross the user/kernel
// boundary through a usermem.IO, operations against mutexes owned by the
// privileged system team are refused for unprivileged callers, and
// interrupted unbounded waits are converted for transparent restart.

// InfoSize is the size in bytes of the info structure written by
// SyscallGetInfo.
const InfoSize = 20 + MaxNameLen

// SyscallCreate creates a mutex whose name is read from user memory at
// nameAddr, owned by the calling thread's team.
func (ta *Table) SyscallCreate(t *sched.Thread, uio usermem.IO, nameAddr usermem.Addr, flags Flags) (ID, error) {
	name, err := usermem.CopyStringIn(uio, nameAddr, MaxNameLen)
	if err != nil {
		return -1, err
	}
	return ta.Create(name, flags, t.Team())
}

// SyscallFind returns the id of the mutex whose name is read from user
// memory at nameAddr.
func (ta *Table) SyscallFind(t *sched.Thread, uio usermem.IO, nameAddr usermem.Addr) (ID, error) {
	name, err := usermem.CopyStringIn(uio, nameAddr, MaxNameLen)
	if err != nil {
		return -1, err
	}
	return ta.Find(name)
}

// SyscallDelete deletes a mutex, refusing system-owned mutexes for
// unprivileged callers.
func (ta *Table) SyscallDelete(t *sched.Thread, id ID) error {
	return ta.deleteMutex(id, t.Team())
}

// SyscallTryAcquire is TryAcquire with the system-team permission check.
func (ta *Table) SyscallTryAcquire(t *sched.Thread, id ID) error {
	return ta.tryAcquire(t, id, true)
}

// SyscallAcquire is the blocking acquire. The timeout argument is in
// nanoseconds and interpreted per mode; it is ignored for TimeoutNone.
//
// If the wait is interrupted and the call can be transparently restarted
// with the same arguments, the unbounded and absolute-deadline forms return
// kernelerr.ERESTART instead of kernelerr.EINTR; a relative timeout cannot
// be restarted without recomputation, so it keeps kernelerr.EINTR.
func (ta *Table) SyscallAcquire(t *sched.Thread, id ID, mode TimeoutMode, timeout int64) error {
	var err error
	switch mode {
	case TimeoutNone:
		err = ta.acquireEtc(t, id, true, TimeoutNone, 0, time.Time{})
	case TimeoutRelative:
		err = ta.acquireEtc(t, id, true, TimeoutRelative, time.Duration(timeout), time.Time{})
	case TimeoutAbsolute:
		err = ta.acquireEtc(t, id, true, TimeoutAbsolute, 0, time.Unix(0, timeout))
	default:
		return kernelerr.EINVAL
	}
	if kernelerr.Equals(kernelerr.EINTR, err) && mode != TimeoutRelative {
		return kernelerr.ERESTART
	}
	return err
}

// SyscallRelease releases a mutex. The holder check makes a separate
// permission check unnecessary.
func (ta *Table) SyscallRelease(t *sched.Thread, id ID) error {
	return ta.Release(t, id)
}

// SyscallMarkConsistent marks a recovered mutex consistent.
func (ta *Table) SyscallMarkConsistent(t *sched.Thread, id ID) error {
	return ta.MarkConsistent(t, id)
}

// SyscallGetInfo writes a mutex's info structure to user memory at
// infoAddr: id, owning team, holder thread (-1 if free), recursion depth and
// creation flags as little-endian 32-bit words, followed by the
// NUL-padded name.
func (ta *Table) SyscallGetInfo(t *sched.Thread, uio usermem.IO, id ID, infoAddr usermem.Addr) error {
	info, err := ta.GetInfo(id)
	if err != nil {
		return err
	}
	b := make([]byte, InfoSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(info.ID))
	le.PutUint32(b[4:], uint32(info.Team))
	le.PutUint32(b[8:], uint32(info.Holder))
	le.PutUint32(b[12:], uint32(info.Recursion))
	le.PutUint32(b[16:], uint32(info.Flags))
	copy(b[20:], info.Name)
	if _, err := uio.CopyOut(infoAddr, b); err != nil {
		return err
	}
	return nil
}
