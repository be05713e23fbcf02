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

// Package kernelerr contains the status codes returned by the mutex
// subsystem, exported as error interface pointers. This allows for fast
// comparison and return operations comparable to unix.Errno constants.
package kernelerr

import (
	"golang.org/x/sys/unix"

	"kmutex.dev/kmutex/pkg/errors"
)

// The following errors are semantically identical to their unix.Errno
// counterparts; the Errno method recovers the numeric value. Note that
// EOWNERDEAD is not a failure: it reports a successful acquisition whose
// previous holder died, and obligates the new holder to restore consistency.
var (
	EINVAL          = errors.New(unix.EINVAL, "invalid mutex id")
	ENOENT          = errors.New(unix.ENOENT, "no mutex by that name")
	ESRCH           = errors.New(unix.ESRCH, "no such team or thread")
	EACCES          = errors.New(unix.EACCES, "operation not allowed")
	EPERM           = errors.New(unix.EPERM, "caller is not the holder")
	EDEADLK         = errors.New(unix.EDEADLK, "resource deadlock would occur")
	ENOSPC          = errors.New(unix.ENOSPC, "mutex table exhausted")
	EAGAIN          = errors.New(unix.EAGAIN, "operation would block")
	ETIMEDOUT       = errors.New(unix.ETIMEDOUT, "timeout expired")
	EINTR           = errors.New(unix.EINTR, "interrupted")
	ERESTART        = errors.New(unix.ERESTART, "interrupted, restart call")
	EFAULT          = errors.New(unix.EFAULT, "bad user address")
	EOWNERDEAD      = errors.New(unix.EOWNERDEAD, "previous holder died")
	ENOTRECOVERABLE = errors.New(unix.ENOTRECOVERABLE, "mutex is not recoverable")
)

// Equals compares a kernelerr to a given error.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == nil
	}
	other, ok := err.(*errors.Error)
	if !ok {
		return false
	}
	return e == other
}
