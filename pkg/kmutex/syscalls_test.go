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
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
	"kmutex.dev/kmutex/pkg/sched"
	"kmutex.dev/kmutex/pkg/usermem"
)

func TestSyscallCreateFind(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	a := ts.NewThread(tm, sched.PriorityNormal)

	buf := make([]byte, 64)
	copy(buf, "app lock\x00")
	uio := &usermem.BytesIO{Bytes: buf}

	id, err := ta.SyscallCreate(a, uio, 0, 0)
	if err != nil {
		t.Fatalf("SyscallCreate: %v", err)
	}
	found, err := ta.SyscallFind(a, uio, 0)
	if err != nil {
		t.Fatalf("SyscallFind: %v", err)
	}
	if found != id {
		t.Errorf("SyscallFind: got %d, wanted %d", found, id)
	}
	info, err := ta.GetInfo(id)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Name != "app lock" {
		t.Errorf("name: got %q, wanted %q", info.Name, "app lock")
	}
	if info.Team != tm.ID() {
		t.Errorf("team: got %d, wanted %d", info.Team, tm.ID())
	}
}

func TestSyscallCreateFault(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	a := ts.NewThread(tm, sched.PriorityNormal)

	uio := &usermem.BytesIO{Bytes: make([]byte, 4)}
	if _, err := ta.SyscallCreate(a, uio, 100, 0); !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Errorf("SyscallCreate: got %v, wanted %v", err, kernelerr.EFAULT)
	}
	// An unterminated name cut short by the end of accessible memory is a
	// fault too.
	uio = &usermem.BytesIO{Bytes: []byte("abcd")}
	if _, err := ta.SyscallCreate(a, uio, 0, 0); !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Errorf("SyscallCreate: got %v, wanted %v", err, kernelerr.EFAULT)
	}
}

func TestSyscallNameTruncated(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	a := ts.NewThread(tm, sched.PriorityNormal)

	// A name longer than the limit inside accessible memory is silently
	// truncated at the limit.
	long := bytes.Repeat([]byte{'x'}, 2*MaxNameLen)
	uio := &usermem.BytesIO{Bytes: long}
	id, err := ta.SyscallCreate(a, uio, 0, 0)
	if err != nil {
		t.Fatalf("SyscallCreate: %v", err)
	}
	info, err := ta.GetInfo(id)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if len(info.Name) != MaxNameLen {
		t.Errorf("name length: got %d, wanted %d", len(info.Name), MaxNameLen)
	}
}

func TestSyscallSystemTeamPermissions(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	user := ts.NewThread(tm, sched.PriorityNormal)
	system := ts.NewThread(ts.SystemTeam(), sched.PriorityNormal)

	id, err := ta.Create("systemwide", 0, ts.SystemTeam())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ta.SyscallTryAcquire(user, id); !kernelerr.Equals(kernelerr.EACCES, err) {
		t.Errorf("SyscallTryAcquire: got %v, wanted %v", err, kernelerr.EACCES)
	}
	if err := ta.SyscallAcquire(user, id, TimeoutNone, 0); !kernelerr.Equals(kernelerr.EACCES, err) {
		t.Errorf("SyscallAcquire: got %v, wanted %v", err, kernelerr.EACCES)
	}
	if err := ta.SyscallDelete(user, id); !kernelerr.Equals(kernelerr.EACCES, err) {
		t.Errorf("SyscallDelete: got %v, wanted %v", err, kernelerr.EACCES)
	}
	// A privileged thread is unrestricted.
	if err := ta.SyscallTryAcquire(system, id); err != nil {
		t.Errorf("SyscallTryAcquire (system): %v", err)
	}
	if err := ta.SyscallRelease(system, id); err != nil {
		t.Errorf("SyscallRelease (system): %v", err)
	}
	if err := ta.SyscallDelete(system, id); err != nil {
		t.Errorf("SyscallDelete (system): %v", err)
	}
}

func TestSyscallAcquireRestart(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	holder := ts.NewThread(tm, sched.PriorityNormal)

	id, err := ta.Create("m", 0, tm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ta.TryAcquire(holder, id); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	// An interrupted unbounded wait restarts transparently.
	a := ts.NewThread(tm, sched.PriorityNormal)
	done := make(chan error, 1)
	go func() {
		done <- ta.SyscallAcquire(a, id, TimeoutNone, 0)
	}()
	waitForWaiters(t, ta, id, 1)
	a.Interrupt()
	if err := <-done; !kernelerr.Equals(kernelerr.ERESTART, err) {
		t.Errorf("SyscallAcquire: got %v, wanted %v", err, kernelerr.ERESTART)
	}

	// An absolute deadline restarts with the same deadline.
	deadline := time.Now().Add(time.Hour).UnixNano()
	go func() {
		done <- ta.SyscallAcquire(a, id, TimeoutAbsolute, deadline)
	}()
	waitForWaiters(t, ta, id, 1)
	a.Interrupt()
	if err := <-done; !kernelerr.Equals(kernelerr.ERESTART, err) {
		t.Errorf("SyscallAcquire (absolute): got %v, wanted %v", err, kernelerr.ERESTART)
	}

	// A relative timeout cannot be restarted as-is; the interruption is
	// reported.
	go func() {
		done <- ta.SyscallAcquire(a, id, TimeoutRelative, int64(time.Hour))
	}()
	waitForWaiters(t, ta, id, 1)
	a.Interrupt()
	if err := <-done; !kernelerr.Equals(kernelerr.EINTR, err) {
		t.Errorf("SyscallAcquire (relative): got %v, wanted %v", err, kernelerr.EINTR)
	}
}

func TestSyscallAcquireBadMode(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	a := ts.NewThread(tm, sched.PriorityNormal)

	id, err := ta.Create("m", 0, tm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ta.SyscallAcquire(a, id, TimeoutMode(99), 0); !kernelerr.Equals(kernelerr.EINVAL, err) {
		t.Errorf("SyscallAcquire: got %v, wanted %v", err, kernelerr.EINVAL)
	}
}

func TestSyscallGetInfoLayout(t *testing.T) {
	ts, tm, ta := newTestTable(8)
	a := ts.NewThread(tm, sched.PriorityNormal)

	id, err := ta.Create("layout", Recursive, tm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ta.TryAcquire(a, id); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if err := ta.TryAcquire(a, id); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	buf := make([]byte, InfoSize)
	uio := &usermem.BytesIO{Bytes: buf}
	if err := ta.SyscallGetInfo(a, uio, id, 0); err != nil {
		t.Fatalf("SyscallGetInfo: %v", err)
	}
	le := binary.LittleEndian
	if got := ID(le.Uint32(buf[0:])); got != id {
		t.Errorf("id word: got %d, wanted %d", got, id)
	}
	if got := int32(le.Uint32(buf[4:])); got != int32(tm.ID()) {
		t.Errorf("team word: got %d, wanted %d", got, tm.ID())
	}
	if got := int32(le.Uint32(buf[8:])); got != int32(a.ID()) {
		t.Errorf("holder word: got %d, wanted %d", got, a.ID())
	}
	if got := le.Uint32(buf[12:]); got != 2 {
		t.Errorf("recursion word: got %d, wanted 2", got)
	}
	if got := Flags(le.Uint32(buf[16:])); got != Recursive {
		t.Errorf("flags word: got %#x, wanted %#x", got, Recursive)
	}
	name := buf[20:]
	if i := bytes.IndexByte(name, 0); i < 0 || string(name[:i]) != "layout" {
		t.Errorf("name bytes: got %q", name)
	}

	// A buffer one byte short faults without side effects.
	short := &usermem.BytesIO{Bytes: make([]byte, InfoSize-1)}
	if err := ta.SyscallGetInfo(a, short, id, 0); !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Errorf("SyscallGetInfo (short): got %v, wanted %v", err, kernelerr.EFAULT)
	}
}
